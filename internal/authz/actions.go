package authz

// Action names a capability checked by the gate.
type Action string

const (
	ActionViewSelf        Action = "view_self"
	ActionRegisterWorker  Action = "register_worker"
	ActionSeedDemo        Action = "seed_demo"
	ActionSubmitSensor    Action = "submit_sensor"
	ActionListWorkers     Action = "list_workers"
	ActionListSupervisors Action = "list_supervisors"
	ActionViewWorker      Action = "view_worker"
	ActionToggleWorker    Action = "toggle_worker"
	ActionExportReadings  Action = "export_readings"
)

var denyMessages = map[Action]string{
	ActionRegisterWorker:  "Forbidden: Admin or Supervisor access required",
	ActionListWorkers:     "Forbidden: Admin or Supervisor access required",
	ActionSeedDemo:        "Forbidden: Admin access required",
	ActionListSupervisors: "Forbidden: Admin access required",
	ActionViewWorker:      "Forbidden: no access to this worker",
	ActionToggleWorker:    "Forbidden: no access to this worker",
	ActionExportReadings:  "Forbidden: no access to this worker",
}

// DenyMessage is the user-facing text for a denied action.
func (a Action) DenyMessage() string {
	if msg, ok := denyMessages[a]; ok {
		return msg
	}
	return "Forbidden"
}
