package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/agents/orchestrator"
	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/agents/specialist"
	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/catalog"
	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/events"
	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/llm"
	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/policy"
	promptx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/prompt"
	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/routing"
	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/service"
	statex "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/state"
	anthropicx "github.com/tanpawarit/omnichannel-retail-orchestrator/pkg/anthropic"
	configx "github.com/tanpawarit/omnichannel-retail-orchestrator/pkg/config"
	_ "github.com/tanpawarit/omnichannel-retail-orchestrator/pkg/logger/autoload"
	openrouterx "github.com/tanpawarit/omnichannel-retail-orchestrator/pkg/openrouter"
	qstashx "github.com/tanpawarit/omnichannel-retail-orchestrator/pkg/qstash"
	"github.com/tanpawarit/omnichannel-retail-orchestrator/pkg/telemetry"
)

type AppConfig struct {
	StoreBackend string `envconfig:"STORE_BACKEND" default:"memory"`
	CatalogPath  string `envconfig:"CATALOG_PATH"`
	RoutingPath  string `envconfig:"ROUTING_PATH"`
	CustomerID   string `envconfig:"CUSTOMER_ID" default:"C001"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatal().Err(err).Msg("retail orchestrator stopped")
	}
}

func run(ctx context.Context) error {
	appCfg := configx.MustNew[AppConfig]("")

	telemetryCfg := configx.MustNew[telemetry.Config]("OTEL")
	shutdown, err := telemetry.Setup(ctx, *telemetryCfg)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			log.Warn().Err(err).Msg("telemetry shutdown")
		}
	}()

	cat, err := catalog.Load(appCfg.CatalogPath)
	if err != nil {
		return err
	}
	routes, err := routing.Load(appCfg.RoutingPath)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, appCfg.StoreBackend)
	if err != nil {
		return err
	}
	defer closeStore()

	llmCfg := configx.MustNew[llm.Config]("LLM")
	reasoner, err := llm.New(ctx, *llmCfg,
		*configx.MustNew[openrouterx.Config]("OPENROUTER"),
		*configx.MustNew[anthropicx.Config]("ANTHROPIC"),
	)
	if err != nil {
		return err
	}

	policyCfg := configx.MustNew[policy.Config]("POLICY")
	registry, err := specialist.NewRegistry(specialist.Deps{
		Catalog:      cat,
		Reasoner:     reasoner,
		Prompts:      promptx.LoadPromptSet(),
		Policy:       *policyCfg,
		HistoryTurns: llmCfg.HistoryTurns,
	})
	if err != nil {
		return err
	}

	var publisherOpts []events.Option
	if qcfg := configx.MustNew[qstashx.Config]("QSTASH"); qcfg.Enabled() {
		publisherOpts = append(publisherOpts, events.WithSink(events.NewQStashSink(qstashx.MustNew(*qcfg))))
		log.Info().Str("destination", qcfg.Destination).Msg("forwarding run events to qstash")
	}

	svc, err := service.New(service.Deps{
		Store:        store,
		Catalog:      cat,
		Registry:     registry,
		Routes:       routes,
		Publisher:    events.NewPublisher(publisherOpts...),
		Orchestrator: *configx.MustNew[orchestrator.Config]("ORCHESTRATOR"),
		Policy:       *policyCfg,
	})
	if err != nil {
		return err
	}

	sessionID, err := svc.CreateSession(ctx, appCfg.CustomerID)
	if err != nil {
		return err
	}
	stream, unsubscribe := svc.Subscribe(ctx, sessionID)
	defer unsubscribe()
	go logEvents(stream)

	fmt.Printf("session %s ready. Type a message or /help.\n", sessionID)
	return repl(ctx, svc, sessionID, os.Stdin, os.Stdout)
}

func openStore(ctx context.Context, backend string) (statex.Store, func(), error) {
	var (
		b       statex.Backend
		closeFn = func() {}
	)
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "memory":
		b = statex.NewMemoryBackend()
	case "upstash":
		cfg := configx.MustNew[statex.UpstashRedisConfig]("UPSTASH_REDIS_REST")
		ub, err := statex.NewUpstashBackend(*cfg)
		if err != nil {
			return nil, nil, err
		}
		b = ub
	case "redis":
		cfg := configx.MustNew[statex.RedisConfig]("REDIS")
		rb, err := statex.NewRedisBackend(ctx, *cfg)
		if err != nil {
			return nil, nil, err
		}
		b, closeFn = rb, func() { _ = rb.Close() }
	case "postgres":
		cfg := configx.MustNew[statex.PostgresConfig]("POSTGRES")
		pb, err := statex.NewPostgresBackend(ctx, *cfg)
		if err != nil {
			return nil, nil, err
		}
		b, closeFn = pb, func() { _ = pb.Close() }
	default:
		return nil, nil, fmt.Errorf("%w: unknown store backend %q", contractx.ErrValidation, backend)
	}

	store, err := statex.NewStore(b)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	log.Info().Str("backend", backend).Msg("session store ready")
	return store, closeFn, nil
}

func logEvents(stream <-chan events.Event) {
	for e := range stream {
		ev := log.Debug().
			Str("run_id", e.RunID).
			Int64("seq", e.Seq).
			Str("kind", string(e.Kind))
		if e.Kind == events.KindAgent {
			ev = ev.Str("agent", string(e.Agent)).Str("state", string(e.AgentStatus)).Int("attempt", e.Attempt)
		} else {
			ev = ev.Str("state", string(e.RunStatus))
		}
		ev.Msg("progress")
	}
}

const helpText = `commands:
  /like <product>            like a product
  /recs                      get recommendations
  /add <product> [qty]       add to cart
  /qty <product> <qty>       change a cart quantity
  /stock <product> [store]   check store availability
  /reserve <store>           reserve the cart for pickup
  /pay [amount]              pay (defaults to the cart total)
  /channel <mobile|chat|store>
  /session                   show the session
  /quit`

func repl(ctx context.Context, svc *service.Service, sessionID string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return nil
		}

		reply, err := dispatch(ctx, svc, sessionID, line)
		if err != nil {
			failure := contractx.Describe(err)
			fmt.Fprintf(out, "error [%s]: %s\n", failure.Kind, failure.Message)
			continue
		}
		fmt.Fprintln(out, reply)
	}
}

func dispatch(ctx context.Context, svc *service.Service, sessionID, line string) (string, error) {
	if !strings.HasPrefix(line, "/") {
		return svc.Chat(ctx, sessionID, line)
	}

	fields := strings.Fields(line)
	arg := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}
	intArg := func(i, fallback int) (int, error) {
		if arg(i) == "" {
			return fallback, nil
		}
		n, err := strconv.Atoi(arg(i))
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", contractx.ErrValidation, arg(i))
		}
		return n, nil
	}

	switch fields[0] {
	case "/help":
		return helpText, nil
	case "/like":
		liked, err := svc.LikeProduct(ctx, sessionID, arg(1))
		if err != nil {
			return "", err
		}
		return "liked: " + strings.Join(liked, ", "), nil
	case "/recs":
		recs, err := svc.GetRecommendations(ctx, sessionID)
		if err != nil {
			return "", err
		}
		var b strings.Builder
		for _, r := range recs {
			fmt.Fprintf(&b, "%s %s (%s) - %s\n", r.ProductID, r.Name, r.Price, r.Reason)
		}
		return strings.TrimRight(b.String(), "\n"), nil
	case "/add", "/qty":
		qty, err := intArg(2, 1)
		if err != nil {
			return "", err
		}
		var cart []statex.CartItem
		if fields[0] == "/add" {
			cart, err = svc.AddToCart(ctx, sessionID, arg(1), qty)
		} else {
			cart, err = svc.UpdateCartQuantity(ctx, sessionID, arg(1), qty)
		}
		if err != nil {
			return "", err
		}
		return formatCart(cart), nil
	case "/stock":
		avail, err := svc.CheckStoreAvailability(ctx, arg(2), arg(1))
		if err != nil {
			return "", err
		}
		var b strings.Builder
		for _, s := range avail.Stores {
			fmt.Fprintf(&b, "%s %s: %d (%s)\n", s.StoreID, s.Name, s.Quantity, s.Source)
		}
		for _, a := range avail.Alternatives {
			fmt.Fprintf(&b, "alternative %s %s (%s)\n", a.ProductID, a.Name, a.Price)
		}
		return strings.TrimRight(b.String(), "\n"), nil
	case "/reserve":
		r, err := svc.ReserveStore(ctx, sessionID, arg(1))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("reserved at %s, confirmation %s, pick up by %s", r.StoreName, r.ConfirmationID, r.PickupBy.Format(time.RFC1123)), nil
	case "/pay":
		units, err := intArg(1, 0)
		if err != nil {
			return "", err
		}
		receipt, err := svc.ProcessPayment(ctx, sessionID, statex.Major(int64(units)))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("paid %s via %s after %d attempt(s), txn %s", receipt.Amount, receipt.Gateway, len(receipt.Attempts), receipt.TransactionID), nil
	case "/channel":
		channel, err := statex.ParseChannel(arg(1))
		if err != nil {
			return "", err
		}
		return svc.SwitchChannel(ctx, sessionID, channel)
	case "/session":
		sess, err := svc.GetSession(ctx, sessionID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("v%d channel=%s liked=%v store=%s fulfillment=%s\n%s\ntotal %s (discount %s)",
			sess.Version, sess.Channel, sess.LikedProducts, sess.ReservedStore, sess.Fulfillment,
			formatCart(sess.Cart), sess.Pricing.Total, sess.Pricing.Discount), nil
	default:
		return "", errors.New("unknown command, try /help")
	}
}

func formatCart(cart []statex.CartItem) string {
	if len(cart) == 0 {
		return "cart is empty"
	}
	var b strings.Builder
	for _, item := range cart {
		fmt.Fprintf(&b, "%s x%d @ %s\n", item.ProductID, item.Quantity, item.UnitPrice)
	}
	return strings.TrimRight(b.String(), "\n")
}
