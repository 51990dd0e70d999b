package game

import "github.com/google/uuid"

// IntentKind tags an Intent. Timer-driven kinds are synthetic and never come from clients.
type IntentKind string

const (
	IntentSetReady      IntentKind = "set_ready"
	IntentAttack        IntentKind = "play_attack"
	IntentDefend        IntentKind = "defend"
	IntentDeflect       IntentKind = "deflect"
	IntentTake          IntentKind = "take_cards"
	IntentThrowIn       IntentKind = "throw_in"
	IntentFinishThrowIn IntentKind = "finish_throw_in"
	IntentEndAttack     IntentKind = "end_attack"
	IntentVote          IntentKind = "vote_play_again"

	IntentThrowInExpired IntentKind = "throw_in_expired"
	IntentVoteExpired    IntentKind = "vote_expired"
)

// Intent is a single request to change room state. Only the fields relevant to Kind are read.
type Intent struct {
	Kind     IntentKind
	PlayerID uuid.UUID

	CardIndex   int  // attack, defend, deflect, throw_in
	TargetIndex int  // defend: battlefield pair index
	Ready       bool // set_ready
	Vote        bool // vote_play_again

	// Generation identifies which timer produced a synthetic intent.
	Generation int
}

// Synthetic reports whether the intent was produced by a room timer.
func (in Intent) Synthetic() bool {
	return in.Kind == IntentThrowInExpired || in.Kind == IntentVoteExpired
}

func (in Intent) payload() map[string]interface{} {
	p := map[string]interface{}{}
	switch in.Kind {
	case IntentAttack, IntentDeflect, IntentThrowIn:
		p["cardIndex"] = in.CardIndex
	case IntentDefend:
		p["cardIndex"] = in.CardIndex
		p["targetIndex"] = in.TargetIndex
	case IntentSetReady:
		p["ready"] = in.Ready
	case IntentVote:
		p["vote"] = in.Vote
	case IntentThrowInExpired, IntentVoteExpired:
		p["generation"] = in.Generation
	}
	return p
}
