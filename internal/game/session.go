package game

import "github.com/prediction-game/internal/domain"

// ChoiceState tracks the two layers of a player's choice for one round:
// proposed (local, ephemeral, set by interaction before submission) and
// confirmed (the last value obtained from the authoritative store). The two
// are never conflated: a refresh always overwrites proposed with confirmed,
// never the reverse.
type ChoiceState struct {
	proposed  *domain.Choice
	confirmed *domain.Choice
}

// Propose records a local, not-yet-submitted choice. Invalid choices are
// ignored.
func (s *ChoiceState) Propose(c domain.Choice) {
	if !c.Valid() {
		return
	}
	s.proposed = &c
}

// ConfirmFrom reconciles against a freshly fetched round snapshot: the
// player's stored choice (if any) becomes confirmed and any local proposal is
// discarded.
func (s *ChoiceState) ConfirmFrom(round *domain.Round, playerName string) {
	s.proposed = nil
	if pred := round.PredictionBy(playerName); pred != nil {
		c := pred.Choice
		s.confirmed = &c
	} else {
		s.confirmed = nil
	}
}

// Confirmed returns the last store-confirmed choice, or false.
func (s *ChoiceState) Confirmed() (domain.Choice, bool) {
	if s.confirmed == nil {
		return 0, false
	}
	return *s.confirmed, true
}

// Effective returns the choice to display: the local proposal when one
// exists, otherwise the confirmed value.
func (s *ChoiceState) Effective() (domain.Choice, bool) {
	if s.proposed != nil {
		return *s.proposed, true
	}
	return s.Confirmed()
}

// Dirty reports whether a submission would change the stored state, which is
// exactly when the submit action should be enabled.
func (s *ChoiceState) Dirty() bool {
	if s.proposed == nil {
		return false
	}
	return s.confirmed == nil || *s.proposed != *s.confirmed
}
