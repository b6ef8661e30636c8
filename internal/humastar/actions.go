package humastar

import "fmt"

// Action is a state-dependent hypermedia action link. Response bodies
// implement Actor to advertise only the transitions valid right now.
//
//	</api/v1/map/draw/toggle>; rel="draw"; method="POST"; title="Start drawing"
type Action struct {
	Rel    string
	Href   string
	Method string
	Title  string
}

// Actor is implemented by response bodies that provide state-dependent actions.
type Actor interface {
	Actions() []Action
}

// LinkHeader formats the action as an RFC 8288 Link header value with
// method and title extension parameters.
func (a Action) LinkHeader() string {
	h := fmt.Sprintf(`<%s>; rel="%s"`, a.Href, a.Rel)
	if a.Method != "" {
		h += fmt.Sprintf(`; method="%s"`, a.Method)
	}
	if a.Title != "" {
		h += fmt.Sprintf(`; title="%s"`, a.Title)
	}
	return h
}
