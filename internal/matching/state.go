package matching

import "fmt"

// State is a stage of a match request.
type State int

const (
	Pending State = iota
	ExtractingSkills
	ComposingQuery
	RetrievingCandidates
	Ranking
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case ExtractingSkills:
		return "extracting_skills"
	case ComposingQuery:
		return "composing_query"
	case RetrievingCandidates:
		return "retrieving_candidates"
	case Ranking:
		return "ranking"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Composing and ranking cannot fail, so Failed is only reachable from the
// stages that talk to upstreams.
var transitions = map[State][]State{
	Pending:              {ExtractingSkills},
	ExtractingSkills:     {ComposingQuery, Failed},
	ComposingQuery:       {RetrievingCandidates},
	RetrievingCandidates: {Ranking, Failed},
	Ranking:              {Done},
}

type machine struct {
	state   State
	history []State
}

func newMachine() *machine {
	return &machine{state: Pending, history: []State{Pending}}
}

// advance panics on a transition the pipeline never makes.
func (m *machine) advance(next State) {
	for _, allowed := range transitions[m.state] {
		if allowed == next {
			m.state = next
			m.history = append(m.history, next)
			return
		}
	}
	panic(fmt.Sprintf("matching: invalid transition %s -> %s", m.state, next))
}
