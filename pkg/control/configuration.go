package control

import "github.com/wayneeseguin/convergent/pkg/tree"

// OnConfigurationChanged is invoked by the configuration store's observer
// after each successful write: it records newConfig as the configuration
// tracker's new latest and schedules a broadcast to every connected agent.
func (s *Service) OnConfigurationChanged(newConfig tree.Value) error {
	if err := s.cfgTracker.InsertLatest(newConfig); err != nil {
		return err
	}
	s.scheduleUpdateAll()
	return nil
}
