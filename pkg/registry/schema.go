// pkg/registry/schema.go
package registry

// Implementation states, in the order an activity moves through them.
const (
	StatusPlanned    = "planned"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusVerified   = "verified"
)

var knownStatuses = map[string]bool{
	StatusPlanned:    true,
	StatusInProgress: true,
	StatusCompleted:  true,
	StatusVerified:   true,
}

// ActivityRegistry is the catalogue of loan process service tasks kept in
// configs/activity-registry.json.
type ActivityRegistry struct {
	Version     string     `json:"version"`
	LastUpdated string     `json:"lastUpdated"`
	Activities  []Activity `json:"activities"`
}

// Activity is the job contract of one service task: the Zeebe task type, the
// variables it reads and writes, and the BPMN error codes it may throw.
type Activity struct {
	ID                   string                 `json:"id"`
	DisplayName          string                 `json:"displayName"`
	Description          string                 `json:"description"`
	Category             string                 `json:"category"`
	Version              string                 `json:"version"`
	TaskType             string                 `json:"taskType"`
	ImplementationStatus string                 `json:"implementationStatus"`
	InputSchema          map[string]interface{} `json:"inputSchema"`
	OutputSchema         map[string]interface{} `json:"outputSchema"`
	ErrorCodes           []string               `json:"errorCodes"`
	Timeout              string                 `json:"timeout"`
	Retries              int                    `json:"retries"`
	Workflows            []string               `json:"workflows"`
	Tags                 []string               `json:"tags"`
}

// InWorkflow reports whether the activity is used by the BPMN process id.
func (a *Activity) InWorkflow(processID string) bool {
	for _, w := range a.Workflows {
		if w == processID {
			return true
		}
	}
	return false
}

// ForWorkflow returns the activities used by the BPMN process id, in
// registry order.
func (r *ActivityRegistry) ForWorkflow(processID string) []Activity {
	var out []Activity
	for _, a := range r.Activities {
		if a.InWorkflow(processID) {
			out = append(out, a)
		}
	}
	return out
}
