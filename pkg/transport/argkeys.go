package transport

// Well-known argument names shared between pkg/control and pkg/agent, so
// the controller and agent sides of the wire contract can't drift apart
// via a typo in one or the other.
const (
	ArgConfiguration     = "configuration"
	ArgConfigurationHash = "configuration_hash"
	ArgState             = "state"
	ArgStateHash         = "state_hash"

	ArgConfigurationDiff      = "configuration_diff"
	ArgStartConfigurationHash = "start_configuration_hash"
	ArgEndConfigurationHash   = "end_configuration_hash"
	ArgStateDiff              = "state_diff"
	ArgStartStateHash         = "start_state_hash"
	ArgEndStateHash           = "end_state_hash"

	ArgCurrentConfigurationHash = "current_configuration_hash"
	ArgCurrentStateHash         = "current_state_hash"

	ArgFragments = "fragments"
	ArgEra       = "era"
	ArgNodeUUID  = "node_uuid"

	ArgDatasetID     = "dataset_id"
	ArgBlockDeviceID = "blockdevice_id"

	// ArgTraceContext carries an opaque token identifying the action that
	// originated a command, so the receiving side's log action can nest
	// under the sender's, mirroring the original protocol's eliot_context
	// argument. It is informational only: absence or loss of this arg
	// never affects command handling.
	ArgTraceContext = "trace_context"
)
