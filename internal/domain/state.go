package domain

// SeenState is the pipeline state carried from one cycle to the next.
// Methods never mutate the receiver; they return an updated copy.
type SeenState struct {
	LastPayload *RawLogPayload // nil until a cycle completes
	Seen        IdentitySet    // identities that already produced a successful record
}

// NewSeenState returns an empty state.
func NewSeenState() SeenState {
	return SeenState{Seen: make(IdentitySet)}
}

// WithSeen returns a copy of the state with ids added to the seen set.
func (s SeenState) WithSeen(ids ...Identity) SeenState {
	seen := s.Seen.Clone()
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return SeenState{LastPayload: s.LastPayload, Seen: seen}
}

// WithPayload returns a copy of the state with p as the last processed payload.
func (s SeenState) WithPayload(p *RawLogPayload) SeenState {
	return SeenState{LastPayload: p, Seen: s.Seen.Clone()}
}
