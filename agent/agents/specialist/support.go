package specialist

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"

	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/catalog"
	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
	statex "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/state"
)

const (
	TopicReturn   = "return"
	TopicExchange = "exchange"
	TopicHelp     = "help"
	TopicGeneral  = "general"
	TopicHandoff  = "handoff"
)

var topicKeywords = []struct {
	topic    string
	keywords []string
}{
	{TopicReturn, []string{"return", "refund"}},
	{TopicExchange, []string{"exchange", "replace", "size"}},
	{TopicHelp, []string{"help", "issue", "problem", "track"}},
}

var topicFacts = map[string][]string{
	TopicReturn: {
		"Items can be returned within 30 days if unused with tags and in original packaging",
		"Refunds reach the original payment method in 5-7 days and pickup can be scheduled",
	},
	TopicExchange: {
		"Exchanges are free for a different size, colour or product",
		"Exchanges take 3-5 days or are instant at any store",
	},
	TopicHelp: {
		"Help topics: order tracking, returns and exchanges, payment issues, product questions",
		"Support is reachable 24/7 on chat or at support@retail.example",
	},
}

type supportAgent struct {
	catalog      *catalog.Catalog
	reasoner     contractx.Reasoner
	prompt       string
	handoff      string
	historyTurns int
	runner       compose.Runnable[supportInput, contractx.PartialResult]
}

type supportInput struct {
	View statex.Session
	Req  contractx.Request
}

func newSupportAgent(deps Deps) (*supportAgent, error) {
	a := &supportAgent{
		catalog:      deps.Catalog,
		reasoner:     deps.Reasoner,
		prompt:       deps.Prompts.Support,
		handoff:      deps.Prompts.Handoff,
		historyTurns: deps.HistoryTurns,
	}
	runner, err := compileSupportGraph(context.Background(), a.reply, a.switchChannel)
	if err != nil {
		return nil, fmt.Errorf("%w: compile support graph: %v", contractx.ErrModelInvoke, err)
	}
	a.runner = runner
	return a, nil
}

func (a *supportAgent) Name() contractx.AgentName { return contractx.AgentSupport }

func (a *supportAgent) Execute(ctx context.Context, view statex.Session, req contractx.Request) (contractx.PartialResult, error) {
	out, err := a.runner.Invoke(ctx, supportInput{View: view, Req: req})
	if err != nil {
		return contractx.PartialResult{Agent: a.Name()}, wrapAgentError(a.Name(), err)
	}
	return out, nil
}

func (a *supportAgent) reply(ctx context.Context, view statex.Session, req contractx.Request) (contractx.PartialResult, error) {
	out := contractx.PartialResult{Agent: a.Name()}
	message := strings.TrimSpace(req.Message)
	topic := detectTopic(message)

	facts := append([]string(nil), topicFacts[topic]...)
	facts = append(facts, a.sessionFacts(view)...)
	if recs, ok := contractx.UpstreamOutput[RecommendationOutput](req, contractx.AgentRecommendation); ok {
		for i, item := range recs.Items {
			if i == 3 {
				break
			}
			facts = append(facts, fmt.Sprintf("Suggested for this customer: %s at %s (%s)", item.Name, item.Price, item.Reason))
		}
	}

	text, err := a.reasoner.Compose(ctx, contractx.ReasoningRequest{
		Agent:        a.Name(),
		Instructions: a.prompt,
		Message:      message,
		History:      view.LastTurns(a.historyTurns),
		Facts:        facts,
	})
	if err != nil {
		return out, err
	}

	out.Output = SupportOutput{Topic: topic, Reply: text}
	out.Mutations.AppendTurns = []statex.Turn{
		{Role: statex.RoleCustomer, Channel: view.Channel, Text: message, At: req.Now},
		{Role: statex.RoleAssistant, Channel: view.Channel, Agent: string(a.Name()), Text: text, At: req.Now},
	}
	return out, nil
}

func (a *supportAgent) switchChannel(ctx context.Context, view statex.Session, req contractx.Request) (contractx.PartialResult, error) {
	out := contractx.PartialResult{Agent: a.Name()}
	channel, err := statex.ParseChannel(string(req.Channel))
	if err != nil {
		return out, err
	}

	facts := append([]string{fmt.Sprintf("The customer moved from %s to %s", view.Channel, channel)}, a.sessionFacts(view)...)
	text, err := a.reasoner.Compose(ctx, contractx.ReasoningRequest{
		Agent:        a.Name(),
		Instructions: a.handoff,
		Message:      fmt.Sprintf("I'm continuing on %s.", channel),
		History:      view.LastTurns(a.historyTurns),
		Facts:        facts,
	})
	if err != nil {
		return out, err
	}

	out.Output = SupportOutput{Topic: TopicHandoff, Reply: text}
	out.Mutations.Channel = statex.Ptr(channel)
	out.Mutations.AppendTurns = []statex.Turn{
		{Role: statex.RoleAssistant, Channel: channel, Agent: string(a.Name()), Text: text, At: req.Now},
	}
	return out, nil
}

func (a *supportAgent) sessionFacts(view statex.Session) []string {
	var facts []string
	if len(view.Cart) > 0 {
		names := make([]string, 0, len(view.Cart))
		for _, item := range view.Cart {
			name := item.ProductID
			if p, err := a.catalog.Product(item.ProductID); err == nil {
				name = p.Name
			}
			names = append(names, fmt.Sprintf("%d x %s", item.Quantity, name))
		}
		facts = append(facts, fmt.Sprintf("Cart: %s, total %s", strings.Join(names, ", "), quoteCart(view.Cart).Total))
	}
	if view.ReservedStore != "" {
		name := view.ReservedStore
		if s, err := a.catalog.Store(view.ReservedStore); err == nil {
			name = s.Name
		}
		facts = append(facts, "Reserved for pickup at "+name)
	}
	return facts
}

func detectTopic(message string) string {
	lower := strings.ToLower(message)
	for _, t := range topicKeywords {
		for _, kw := range t.keywords {
			if strings.Contains(lower, kw) {
				return t.topic
			}
		}
	}
	return TopicGeneral
}
