package decision

import "github.com/BTreeMap/SalesPipe/internal/models"

// Ownership substeps. The speaker picks its script from the current substep.
const (
	OwnershipAskCommitment  = 0 // commitment question not asked yet
	OwnershipAwaitAnswer    = 1 // asked, waiting for a yes
	OwnershipSelfPersuasion = 2 // prospect said yes, ask why it feels right
	OwnershipBridge         = 3 // self-persuasion failed, one bridge attempt
	OwnershipPresentOffer   = 4 // state the offer and price
	OwnershipObjection      = 5 // objection after the price, diffuse in place
	OwnershipClose          = 6 // definitive response, close
)

// NextOwnershipSubstep advances the ownership sub-machine for one prospect
// reply. It only moves forward: 0→1→2→{3|4}, 3→4, 4→{5|6}, 5→6.
// Step 0 is left alone; MarkOwnershipAsked moves it to 1 once the question is out.
func NextOwnershipSubstep(step int, a models.Analysis) int {
	switch step {
	case OwnershipAwaitAnswer:
		if a.UserIntent.IsAgreement() {
			return OwnershipSelfPersuasion
		}
	case OwnershipSelfPersuasion:
		if a.ResponseRichness == models.RichnessThin || a.UserIntent == models.IntentConfusion {
			return OwnershipBridge
		}
		return OwnershipPresentOffer
	case OwnershipBridge:
		// The bridge is a single attempt.
		return OwnershipPresentOffer
	case OwnershipPresentOffer:
		if a.HasObjection() || a.UserIntent == models.IntentObjection || a.UserIntent == models.IntentPushback {
			return OwnershipObjection
		}
		if a.UserIntent.IsAgreement() {
			return OwnershipClose
		}
	case OwnershipObjection:
		if a.ObjectionDiffusionStatus == models.DiffusionResolved || a.UserIntent == models.IntentAgreement {
			return OwnershipClose
		}
	}
	return step
}

// MarkOwnershipAsked records that the commitment question went out this turn.
func MarkOwnershipAsked(step int) int {
	if step == OwnershipAskCommitment {
		return OwnershipAwaitAnswer
	}
	return step
}
