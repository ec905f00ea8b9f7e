package pipelines

// ModelInfo describes a pipeline to the host's model picker.
type ModelInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PipelineType is how these pipelines present themselves to the host.
const PipelineType = "manifold"

// Models returns the pipeline's single catalog entry.
// Each call returns a fresh slice.
func (p *Pipeline) Models() []ModelInfo {
	return []ModelInfo{{ID: p.id, Name: p.name}}
}

// Pipelines is the host-facing alias of Models.
func (p *Pipeline) Pipelines() []ModelInfo {
	return p.Models()
}
