// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acqctl

// State is one node of the controller's finite-state graph (§4.2).
type State int

const (
	StateStart State = iota
	StateCreateContext
	StateCreateSockets
	StateBindSockets
	StateCreateControlUnit
	StateCreateDigitizer
	StateReadConfig
	StateConfigureDigitizer
	StateAllocateMemory
	StatePublishStatus
	StateReceiveCommands

	StateStartAcquisition
	StateAcquisitionReceiveCommands
	StateReadData
	StatePublishEvents
	StateAcquisitionPublishStatus

	StateStopPublishEvents
	StateStopAcquisition

	StateAcquisitionError
	StateRestartPublishEvents
	StateRestartStopAcquisition
	StateRestartClearMemory
	StateRestartDestroyDigitizer
	StateRestartCreateDigitizer
	StateRestartConfigureDigitizer
	StateRestartAllocateMemory

	StateClearMemory
	StateDestroyDigitizer
	StateDestroyControlUnit
	StateCloseSockets
	StateDestroyContext
	StateStop

	StateCommunicationError
	StateParseError
	StateConfigureError
	StateReconfigureDestroyDigitizer
	StateRecreateDigitizer

	StateDigitizerError
	StateReconfigureClearMemory
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateCreateContext:
		return "create_context"
	case StateCreateSockets:
		return "create_sockets"
	case StateBindSockets:
		return "bind_sockets"
	case StateCreateControlUnit:
		return "create_control_unit"
	case StateCreateDigitizer:
		return "create_digitizer"
	case StateReadConfig:
		return "read_config"
	case StateConfigureDigitizer:
		return "configure_digitizer"
	case StateAllocateMemory:
		return "allocate_memory"
	case StatePublishStatus:
		return "publish_status"
	case StateReceiveCommands:
		return "receive_commands"
	case StateStartAcquisition:
		return "start_acquisition"
	case StateAcquisitionReceiveCommands:
		return "acquisition_receive_commands"
	case StateReadData:
		return "read_data"
	case StatePublishEvents:
		return "publish_events"
	case StateAcquisitionPublishStatus:
		return "acquisition_publish_status"
	case StateStopPublishEvents:
		return "stop_publish_events"
	case StateStopAcquisition:
		return "stop_acquisition"
	case StateAcquisitionError:
		return "acquisition_error"
	case StateRestartPublishEvents:
		return "restart_publish_events"
	case StateRestartStopAcquisition:
		return "restart_stop_acquisition"
	case StateRestartClearMemory:
		return "restart_clear_memory"
	case StateRestartDestroyDigitizer:
		return "restart_destroy_digitizer"
	case StateRestartCreateDigitizer:
		return "restart_create_digitizer"
	case StateRestartConfigureDigitizer:
		return "restart_configure_digitizer"
	case StateRestartAllocateMemory:
		return "restart_allocate_memory"
	case StateClearMemory:
		return "clear_memory"
	case StateDestroyDigitizer:
		return "destroy_digitizer"
	case StateDestroyControlUnit:
		return "destroy_control_unit"
	case StateCloseSockets:
		return "close_sockets"
	case StateDestroyContext:
		return "destroy_context"
	case StateStop:
		return "stop"
	case StateCommunicationError:
		return "communication_error"
	case StateParseError:
		return "parse_error"
	case StateConfigureError:
		return "configure_error"
	case StateReconfigureDestroyDigitizer:
		return "reconfigure_destroy_digitizer"
	case StateRecreateDigitizer:
		return "recreate_digitizer"
	case StateDigitizerError:
		return "digitizer_error"
	case StateReconfigureClearMemory:
		return "reconfigure_clear_memory"
	default:
		return "unknown"
	}
}

// terminatesTo is consulted at the top of every loop iteration: once
// the termination flag is latched, the next state is forced to
// clear_memory regardless of where the machine currently is,
// guaranteeing it drains through the normal shutdown edges exactly
// once (property 7).
func terminatesTo(cur State) State {
	switch cur {
	case StateClearMemory, StateDestroyDigitizer, StateDestroyControlUnit,
		StateCloseSockets, StateDestroyContext, StateStop:
		return cur // already inside the shutdown chain; let it finish
	default:
		return StateClearMemory
	}
}
