package pipelines

import "sync"

// Request flows through the pipz pipeline.
// Stages read the input fields and fill in the output fields in order.
type Request struct {
	// Input fields
	UserMessage string         // Latest user message as supplied by the host
	ModelID     string         // Model id the host addressed
	Messages    []ChatMessage  // Raw chat history, oldest first
	Body        map[string]any // Auxiliary caller fields

	// Metadata fields
	RequestID  string   // Unique identifier for this request
	PipelineID string   // Id of the pipeline handling the request
	Stripped   []string // Housekeeping keys removed from Body

	// Output fields (populated by pipeline)
	Conversation *Conversation // Normalized history
	Search       *SearchResult // Search stage output
	Answer       string        // Synthesis stage output
	Output       string        // Answer with References appended
	Usage        TokenUsage    // Token usage summed over both stages
	Err          error         // First stage error, unwrapped from pipz
	FailedStage  string        // Name of the stage that recorded Err

	mu sync.Mutex
}

// fail records the first stage error so Execute can return it unwrapped.
func (r *Request) fail(stage string, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err == nil {
		r.Err = err
		r.FailedStage = stage
	}
	return err
}

// stageError returns the recorded stage error and its stage, if any.
func (r *Request) stageError() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.FailedStage, r.Err
}
