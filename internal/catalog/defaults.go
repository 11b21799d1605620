package catalog

import "github.com/BTreeMap/SalesPipe/internal/models"

// Default returns the built-in seven-phase catalog.
func Default() *Catalog {
	c, err := New(defaultSpecs()...)
	if err != nil {
		// The built-in data is covered by tests; failing here is a programming error.
		panic(err)
	}
	return c
}

func defaultSpecs() []PhaseSpec {
	return []PhaseSpec{
		{
			Phase:   models.PhaseConnection,
			Purpose: "Build rapport and understand who they are. Get their role, company context, and why they're here.",
			Criteria: []Criterion{
				{ID: "role_shared", Description: "Prospect has shared their role or job title", Guidance: "Find out what they do. Ask about their role or position."},
				{ID: "company_or_industry_shared", Description: "Prospect has shared what their company does or their industry", Guidance: "Find out where they work or what industry they're in."},
				{ID: "ai_interest_stated", Description: "Prospect has given a reason they're interested in AI (even vague is fine)", Guidance: "Find out what drew them here or what interests them about AI."},
			},
			MaxRetries:       3,
			MinTurns:         2,
			ObjectionRouting: true,
			Objectives: []string{
				"Learn the prospect's name, role, and company",
				"Understand what brought them to explore AI",
				"If they give role, company and reason in one message, that's enough to move on",
			},
			QuestionPatterns: []string{
				"What do you do, and what got you curious about AI?",
				"Tell me a bit about your company. What space are you in?",
				"What sparked the interest in looking at AI right now?",
			},
			ExtractionTarget: []string{"name", "role", "company", "industry"},
			MaxSentences:     2,
		},
		{
			Phase:   models.PhaseSituation,
			Purpose: "Map their current operations so the problem questions can be specific.",
			Criteria: []Criterion{
				{ID: "workflow_described", Description: "Prospect has described their current workflow, process, or day-to-day work", Guidance: "Ask about their day-to-day work or how their team currently operates."},
				{ID: "concrete_detail_shared", Description: "Prospect has mentioned something concrete: team size, tools, processes, or specific tasks", Guidance: "Get a specific detail: a tool they use, a number, a process, something concrete."},
				{ID: "operational_detail_sufficient", Description: "There is enough operational detail to ask specific problem-awareness questions", Guidance: "Fill in whatever is still vague about how the work actually gets done."},
			},
			MaxRetries:       3,
			MinTurns:         2,
			ObjectionRouting: true,
			Objectives: []string{
				"Get a clear picture of their daily operations",
				"Understand team structure, tools, or processes they use",
				"Ask follow-ups that reference what they just said",
			},
			QuestionPatterns: []string{
				"Walk me through what a typical week looks like for you in terms of [their area].",
				"How does your team currently handle [their process]?",
				"What tools or systems are you using for that right now?",
			},
			ExtractionTarget: []string{"current_state", "team_size", "tools_mentioned"},
			MaxSentences:     2,
		},
		{
			Phase:   models.PhaseProblemAwareness,
			Purpose: "Surface a real pain point that the prospect states in their own words.",
			Criteria: []Criterion{
				{ID: "specific_pain_articulated", Description: "Prospect has articulated at least one specific pain point or frustration in their own words", Guidance: "Get them to describe a specific pain point in their own words. Don't suggest pains."},
				{ID: "pain_is_current", Description: "The pain is real and current, not hypothetical", Guidance: "Confirm this pain is happening now, not a past or hypothetical issue."},
				{ID: "pain_self_stated", Description: "The pain was stated by the prospect, not suggested by the agent", Guidance: "Let them name the problem. Ask, don't offer."},
			},
			MaxRetries:       4,
			MinTurns:         2,
			ObjectionRouting: true,
			Objectives: []string{
				"Help the prospect discover and articulate their pain themselves",
				"Use what you learned in Situation to ask targeted questions",
				"Once they name a real, specific pain, move on. Don't over-dig.",
			},
			QuestionPatterns: []string{
				"You mentioned [specific thing from Situation]. What's the hardest part about that?",
				"When things go wrong with [their process], what does that look like?",
			},
			ExtractionTarget: []string{"pain_points", "frustrations"},
			MaxSentences:     2,
		},
		{
			Phase:   models.PhaseSolutionAwareness,
			Purpose: "Get them to paint a picture of their ideal future and feel the gap from today.",
			Criteria: []Criterion{
				{ID: "desired_state_described", Description: "Prospect has described what success or improvement would look like for them", Guidance: "Ask what their ideal situation would look like."},
				{ID: "gap_is_clear", Description: "There is a clear contrast between their current pain and their desired state", Guidance: "Make the gap between now and where they want to be feel real and specific."},
				{ID: "gap_is_felt", Description: "The prospect feels the gap between where they are and where they want to be", Guidance: "Let them sit with the distance between now and their ideal."},
			},
			MaxRetries:            3,
			MinTurns:              1,
			RequiredProfileFields: []models.ProfileField{models.FieldPainPoints},
			ObjectionRouting:      true,
			Objectives: []string{
				"Get them to describe their ideal outcome in concrete terms",
				"Reference their pain point when asking about the future",
			},
			QuestionPatterns: []string{
				"You mentioned [their pain]. If you could wave a magic wand, what would that look like instead?",
				"What would success actually look like for your team on this?",
			},
			ExtractionTarget: []string{"desired_state", "success_metrics"},
			MaxSentences:     2,
		},
		{
			Phase:   models.PhaseConsequence,
			Purpose: "Make the cost of inaction real and personal so there is urgency.",
			Criteria: []Criterion{
				{ID: "cost_acknowledged", Description: "Prospect has acknowledged a tangible cost of not solving this", Guidance: "Help them quantify the cost of not fixing this. Time, money, people, opportunity."},
				{ID: "cost_is_personal", Description: "The cost feels personal and real to them, not hypothetical", Guidance: "Connect the cost to them personally: their clients, their career, their stress."},
				{ID: "urgency_felt", Description: "They understand that waiting has a price", Guidance: "Help them feel why waiting is costly. What happens if nothing changes in 6 months?"},
			},
			MaxRetries:            4,
			MinTurns:              2,
			RequiredProfileFields: []models.ProfileField{models.FieldPainPoints, models.FieldDesiredState},
			ObjectionRouting:      true,
			Objectives: []string{
				"Help them quantify, even roughly, what doing nothing costs",
				"Reference their pain and desired state",
				"Don't force numbers. 'A lot' counts if they feel it",
			},
			QuestionPatterns: []string{
				"If nothing changes in the next 6 months, what does that actually look like for you?",
				"You mentioned [their pain]. What's that costing you right now, even roughly?",
			},
			ExtractionTarget: []string{"cost_of_inaction", "timeline_pressure", "competitive_risk"},
			MaxSentences:     3,
		},
		{
			Phase:   models.PhaseOwnership,
			Purpose: "Run the commitment sequence, present the workshop and handle objections in place.",
			Criteria: []Criterion{
				{ID: "commitment_question_asked", Description: "The commitment question has been asked and answered", Guidance: "Ask the commitment question: do they feel a customized AI plan could help?"},
				{ID: "price_stated", Description: "The price has been clearly stated to the prospect", Guidance: "State the price of the Discovery Workshop."},
				{ID: "definitive_response", Description: "Prospect has given a definitive response: yes to paid, yes to free, or a hard no", Guidance: "Get a clear yes (paid or free) or no. 'Maybe' doesn't count."},
			},
			MaxRetries:            6,
			MinTurns:              2,
			RequiredProfileFields: []models.ProfileField{models.FieldPainPoints, models.FieldCostOfInaction},
			ObjectionRouting:      false,
			Objectives: []string{
				"Connect the workshop to their specific situation",
				"State the price clearly",
				"Only advance when they give a clear yes to paid or free",
			},
			QuestionPatterns: []string{
				"Based on everything you've shared... do you feel like having a customized AI plan could help you get there?",
				"Who else would need to be involved in a decision like this?",
			},
			ExtractionTarget: []string{"decision_authority", "decision_timeline", "budget_signals"},
			MaxSentences:     4,
		},
		{
			Phase:   models.PhaseCommitment,
			Purpose: "Close. Collect email and phone, then send the payment or booking link.",
			Criteria: []Criterion{
				{ID: "positive_signal", Description: "Prospect has given a positive signal", Guidance: "Confirm their decision: are they moving forward?"},
				{ID: "email_collected", Description: "Email address has been collected", Guidance: "Ask for their email address."},
				{ID: "phone_collected", Description: "Phone number has been collected", Guidance: "Ask for their phone number."},
				{ID: "link_sent", Description: "Payment or booking link has been sent", Guidance: "Send them the appropriate link (payment or free workshop)."},
			},
			MaxRetries:       5,
			MinTurns:         1,
			ObjectionRouting: false,
			Objectives: []string{
				"Collect email, then phone, then send the link",
				"If it's a hard no, thank them and end gracefully",
			},
			QuestionPatterns: []string{
				"What's the best email to send the details to?",
				"And what's the best number to reach you at?",
			},
			ExtractionTarget: []string{"email", "phone"},
			MaxSentences:     3,
		},
	}
}
