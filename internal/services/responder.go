package services

// StaticResponder answers every ai_response prompt with a fixed text.
// Stands in until a real model backend is wired; deterministic so flows
// behave the same on every run.
type StaticResponder struct {
	Reply string
}

func (r StaticResponder) Respond(prompt string, variables map[string]string) (string, error) {
	return r.Reply, nil
}
