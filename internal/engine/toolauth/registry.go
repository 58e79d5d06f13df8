package toolauth

// Requirement is the declarative connection metadata a tool carries: the
// provider it needs, if any, and the scopes it expects. Tools themselves
// live outside this core.
type Requirement struct {
	Tool        string   `json:"tool"`
	Description string   `json:"description,omitempty"`
	Provider    string   `json:"provider,omitempty"`
	Scopes      []string `json:"scopes,omitempty"`
}

// Registry is the read-only capability table supplied at startup. It is
// injected rather than global so tests can swap it wholesale.
type Registry struct {
	byTool map[string]Requirement
	order  []string
}

func NewRegistry(requirements []Requirement) *Registry {
	r := &Registry{byTool: make(map[string]Requirement, len(requirements))}
	for _, req := range requirements {
		if _, seen := r.byTool[req.Tool]; !seen {
			r.order = append(r.order, req.Tool)
		}
		r.byTool[req.Tool] = req
	}
	return r
}

func (r *Registry) Lookup(tool string) (Requirement, bool) {
	req, ok := r.byTool[tool]
	return req, ok
}

func (r *Registry) List() []Requirement {
	out := make([]Requirement, 0, len(r.order))
	for _, tool := range r.order {
		out = append(out, r.byTool[tool])
	}
	return out
}
