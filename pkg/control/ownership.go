package control

import (
	"fmt"

	"github.com/wayneeseguin/convergent/internal/cerrors"
)

// OwnershipConflict is the structured payload of the AlreadyOwned domain
// error, richer than a plain string: it carries both the existing
// binding and the one that was just attempted, so the caller can decide
// whether the conflict is actually benign (e.g. a retried request racing
// its own prior success).
type OwnershipConflict struct {
	DatasetID  string
	Existing   string
	Attempted  string
}

func (e *OwnershipConflict) Error() string {
	return fmt.Sprintf("dataset %s already owned by blockdevice %s (attempted %s)", e.DatasetID, e.Existing, e.Attempted)
}

// OnSetBlockDeviceID records dataset_id -> blockdevice_id as an ownership
// binding, idempotently. The binding is kept only in the service's
// in-memory table; it is not written to the configuration store, so it
// does not survive a controller restart. It fails with an AlreadyOwned domain
// error (cerrors.Kind == Domain, Cause is *OwnershipConflict) if a
// different binding already exists for this dataset.
func (s *Service) OnSetBlockDeviceID(datasetID, blockdeviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.blockdeviceOwners[datasetID]
	if ok && existing != blockdeviceID {
		conflict := &OwnershipConflict{DatasetID: datasetID, Existing: existing, Attempted: blockdeviceID}
		return cerrors.Wrap(cerrors.Domain, "blockdevice ownership conflict", conflict)
	}

	s.blockdeviceOwners[datasetID] = blockdeviceID
	return nil
}
