// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldTaskID    = "task_id"
	FieldHostUUID  = "host_uuid"
	FieldHostName  = "host_name"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Host state fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldAddress  = "address"
	FieldAppID    = "app_id"

	// Path fields
	FieldPath    = "path"
	FieldDataDir = "data_dir"
)
