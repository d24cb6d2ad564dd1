// Package metaprompt maintains and evolves the population of system-prompt
// templates, ranking them by the downstream fitness of the candidates they
// produced.
package metaprompt

import (
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmprotest/openevolve/internal/obslog"
	"github.com/mmprotest/openevolve/internal/store"
)

// seedTemplates are the canonical system-prompt templates used to bootstrap
// an empty population.
var seedTemplates = []string{
	"You are an expert software optimization engineer. Propose the smallest, " +
		"safest edit that improves the stated metrics.",
	"You are a careful code reviewer turned author. Prefer clarity and " +
		"correctness over cleverness when editing the region.",
	"You are a performance engineer. Favor algorithmic improvements over " +
		"micro-optimizations unless the budget is already tight.",
}

// directiveTable is the fixed set of mutation directives appended to a
// template when it is mutated.
var directiveTable = []string{
	"Explain your reasoning in a one-line comment above the change.",
	"Prefer standard library functions over hand-rolled equivalents.",
	"Keep the edit within the marked region only.",
	"Avoid introducing new dependencies.",
	"Preserve the existing function signature exactly.",
	"Minimize the number of changed lines.",
}

// Population manages meta-prompt templates backed by the persistence store.
type Population struct {
	Store *store.Store
	Rand  *rand.Rand
}

// New constructs a Population seeded deterministically from seed.
func New(st *store.Store, seed int64) *Population {
	return &Population{Store: st, Rand: rand.New(rand.NewSource(seed))}
}

// Init seeds the population with the canonical templates if none exist yet.
func (p *Population) Init() error {
	existing, err := p.Store.ListMetaPrompts()
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	for _, tmpl := range seedTemplates {
		mp := store.MetaPrompt{
			ID:       uuid.NewString(),
			Template: tmpl,
			Fitness:  0.5,
			LastUsed: time.Now(),
		}
		if err := p.Store.InsertMetaPrompt(mp); err != nil {
			return err
		}
	}
	obslog.Get(obslog.CategoryMetaPrompt).Info("seeded %d canonical meta-prompts", len(seedTemplates))
	return nil
}

// SelectTop returns the top n meta-prompts by (fitness desc, last-used
// desc), mutating new ones into existence if the population is smaller
// than n.
func (p *Population) SelectTop(n int) ([]store.MetaPrompt, error) {
	all, err := p.Store.ListMetaPrompts()
	if err != nil {
		return nil, err
	}

	for len(all) < n {
		var parent store.MetaPrompt
		if len(all) == 0 {
			parent = store.MetaPrompt{Template: seedTemplates[0]}
		} else {
			parent = all[p.Rand.Intn(len(all))]
		}
		child := store.MetaPrompt{
			ID:       uuid.NewString(),
			Template: Mutate(parent.Template, p.Rand),
			Fitness:  parent.Fitness,
			LastUsed: time.Now(),
		}
		if parent.ID != "" {
			child.ParentIDs = []string{parent.ID}
		}
		if err := p.Store.InsertMetaPrompt(child); err != nil {
			return nil, err
		}
		all = append(all, child)
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Fitness != all[j].Fitness {
			return all[i].Fitness > all[j].Fitness
		}
		return all[i].LastUsed.After(all[j].LastUsed)
	})

	if n > len(all) {
		n = len(all)
	}
	return all[:n], nil
}

// Mutate picks one directive line at random from the fixed table and
// appends it to template. If the chosen line already appears in the
// template the template is returned unchanged, even when other directives
// are still absent.
func Mutate(template string, r *rand.Rand) string {
	pick := directiveTable[r.Intn(len(directiveTable))]
	if strings.Contains(template, pick) {
		return template
	}
	return template + "\n" + pick
}

// Evolve recomputes fitness for every meta-prompt named in contributions:
// for each, the average across its candidates of (mean of that candidate's
// numeric metrics) yields a raw score, whose logistic becomes the new
// fitness. The raw score mixes metrics of different scales; it is a
// surrogate, not a calibrated measure.
func (p *Population) Evolve(contributions map[string][]string, evalsByCandidate map[string]map[string]float64) error {
	timer := obslog.StartTimer(obslog.CategoryMetaPrompt, "Evolve")
	defer timer.Stop()

	for metaPromptID, candidateIDs := range contributions {
		if len(candidateIDs) == 0 {
			continue
		}
		var total float64
		counted := 0
		for _, cid := range candidateIDs {
			metrics := evalsByCandidate[cid]
			if len(metrics) == 0 {
				continue
			}
			sum := 0.0
			for _, v := range metrics {
				sum += v
			}
			total += sum / float64(len(metrics))
			counted++
		}
		if counted == 0 {
			continue
		}
		raw := total / float64(counted)
		fitness := logistic(raw)
		if err := p.Store.UpdateMetaPromptFitness(metaPromptID, fitness); err != nil {
			return err
		}
		if err := p.Store.TouchMetaPromptLastUsed(metaPromptID, time.Now()); err != nil {
			return err
		}
	}
	return nil
}

func logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
