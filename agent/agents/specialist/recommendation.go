package specialist

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/catalog"
	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
	statex "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/state"
)

const maxRecommendations = 5

type recommendationAgent struct {
	catalog  *catalog.Catalog
	reasoner contractx.Reasoner
	prompt   string
}

func (a *recommendationAgent) Name() contractx.AgentName { return contractx.AgentRecommendation }

func (a *recommendationAgent) Execute(ctx context.Context, view statex.Session, req contractx.Request) (contractx.PartialResult, error) {
	out := contractx.PartialResult{Agent: a.Name()}

	switch req.Intent {
	case contractx.IntentLikeProduct:
		if _, err := a.catalog.Product(req.ProductID); err != nil {
			return out, wrapAgentError(a.Name(), err)
		}
		liked := slices.Clone(view.LikedProducts)
		if !view.Likes(req.ProductID) {
			out.Mutations.LikeProducts = []string{req.ProductID}
			liked = append(liked, req.ProductID)
			slices.Sort(liked)
		}
		out.Output = RecommendationOutput{Liked: liked}
		return out, nil

	case contractx.IntentGetRecommendations:
		items := a.rank(view, "")
		pitch, err := a.pitch(ctx, view, items)
		if err != nil {
			return out, wrapAgentError(a.Name(), err)
		}
		out.Output = RecommendationOutput{Items: items, Pitch: pitch}
		return out, nil

	case contractx.IntentChat:
		out.Output = RecommendationOutput{Items: a.rank(view, req.Message)}
		return out, nil

	default:
		return out, wrapAgentError(a.Name(), fmt.Errorf("%w: recommendation does not handle %s", contractx.ErrValidation, req.Intent))
	}
}

// rank orders in-stock products the customer has not liked or carted.
// Liked products drive the ranking; without likes the cart does; without
// either the catalog's trending order is used.
func (a *recommendationAgent) rank(view statex.Session, message string) []Recommendation {
	var seeds []catalog.Product
	seedReason := ""
	switch {
	case len(view.LikedProducts) > 0:
		seeds = a.lookup(view.LikedProducts)
		seedReason = "Goes with %s you liked"
	case len(view.Cart) > 0:
		ids := make([]string, 0, len(view.Cart))
		for _, item := range view.Cart {
			ids = append(ids, item.ProductID)
		}
		seeds = a.lookup(ids)
		seedReason = "Completes the look with %s in your cart"
	}
	keywords := strings.Fields(strings.ToLower(message))

	var out []Recommendation
	for _, p := range a.catalog.Products() {
		if view.Likes(p.ID) || a.catalog.TotalStock(p.ID) == 0 {
			continue
		}
		if _, inCart := view.CartItem(p.ID); inCart {
			continue
		}

		rec := Recommendation{
			ProductID: p.ID, Name: p.Name, Category: p.Category,
			Price: p.UnitPrice(), Score: p.MatchScore, Reason: "Trending this week",
		}
		if len(seeds) > 0 {
			best, overlap := bestSeed(p, seeds)
			if overlap == 0 {
				continue
			}
			rec.Score += 0.1 * float64(overlap)
			if best.Category != p.Category {
				rec.Score += 0.05
			}
			rec.Reason = fmt.Sprintf(seedReason, best.Name)
		}
		if hit := matchKeyword(p, keywords); hit != "" {
			rec.Score += 0.5
			rec.Reason = fmt.Sprintf("Matches %q. %s", hit, rec.Reason)
		}
		out = append(out, rec)
	}

	slices.SortFunc(out, func(x, y Recommendation) int {
		if c := cmp.Compare(y.Score, x.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(x.Price, y.Price); c != 0 {
			return c
		}
		return cmp.Compare(x.ProductID, y.ProductID)
	})
	if len(out) > maxRecommendations {
		out = out[:maxRecommendations]
	}
	return out
}

func (a *recommendationAgent) lookup(ids []string) []catalog.Product {
	out := make([]catalog.Product, 0, len(ids))
	for _, id := range ids {
		if p, err := a.catalog.Product(id); err == nil {
			out = append(out, p)
		}
	}
	return out
}

func (a *recommendationAgent) pitch(ctx context.Context, view statex.Session, items []Recommendation) (string, error) {
	if len(items) == 0 {
		return "", nil
	}
	facts := make([]string, 0, len(items))
	for _, item := range items {
		facts = append(facts, fmt.Sprintf("%s (%s) at %s: %s", item.Name, item.ProductID, item.Price, item.Reason))
	}
	return a.reasoner.Compose(ctx, contractx.ReasoningRequest{
		Agent:        a.Name(),
		Instructions: a.prompt,
		Message:      "Suggest products for me.",
		History:      view.LastTurns(4),
		Facts:        facts,
	})
}

func bestSeed(p catalog.Product, seeds []catalog.Product) (catalog.Product, int) {
	var (
		best    catalog.Product
		overlap int
	)
	for _, seed := range seeds {
		if n := p.TagOverlap(seed); n > overlap {
			best, overlap = seed, n
		}
	}
	return best, overlap
}

func matchKeyword(p catalog.Product, keywords []string) string {
	tokens := append(strings.Split(strings.ToLower(p.Category), "-"), p.Tags...)
	for _, kw := range keywords {
		kw = strings.Trim(kw, ".,!?\"'")
		if len(kw) < 3 {
			continue
		}
		for _, tok := range tokens {
			if tok == kw || tok == kw+"s" {
				return kw
			}
		}
	}
	return ""
}
