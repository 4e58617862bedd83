package pipeline

import "github.com/ambiware-labs/voxforge/internal/scenario"

// Built-in seed vocabulary. A run cycles through the lists deterministically
// so the same scenario count covers the same spread of settings.
var (
	seedTopics = []string{
		"ordering food at a busy restaurant",
		"asking for directions in an unfamiliar city",
		"scheduling a doctor's appointment",
		"negotiating the price of a used car",
		"planning a weekend trip with a friend",
		"interviewing for a software job",
		"returning a faulty appliance to a store",
		"discussing a news story with a coworker",
		"checking in at an airport counter",
		"calling a landlord about a broken heater",
	}
	seedDialogueTypes = []string{
		"casual conversation",
		"interview",
		"negotiation",
		"customer service call",
		"debate",
	}
	seedSpatialContexts = []string{
		"urban", "suburban", "corporate", "academic",
	}
	seedCulturalBackgrounds = []string{
		"Western", "Eastern", "Global",
	}
)

func (p *Pipeline) seedFor(i int) scenario.Seed {
	return scenario.Seed{
		Topic:              seedTopics[i%len(seedTopics)],
		Language:           p.cfg.Language,
		DialogueType:       seedDialogueTypes[i%len(seedDialogueTypes)],
		TemporalContext:    "modern day",
		SpatialContext:     seedSpatialContexts[i%len(seedSpatialContexts)],
		CulturalBackground: seedCulturalBackgrounds[i%len(seedCulturalBackgrounds)],
	}
}
