package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/park285/cubetimer/internal/adapter/solvepresenter"
	"github.com/park285/cubetimer/internal/appbuilder"
	"github.com/park285/cubetimer/internal/auth"
	appcfg "github.com/park285/cubetimer/internal/config"
	"github.com/park285/cubetimer/internal/jsonx"
	"github.com/park285/cubetimer/internal/obslog"
	"github.com/park285/cubetimer/internal/store"
	"github.com/park285/cubetimer/pkg/solvedto"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

func usage() {
	fmt.Fprintln(os.Stderr, strings.Join([]string{
		"usage: cubecheck <command> [flags]",
		"",
		"  probe           check /healthz and the websocket handshake",
		"  history         print the signed-in user's recent solves",
		"  recompute       rebuild profile snapshots from solve history",
		"  sign            mint an access token for an owner id",
		"  config-example  print a TOML config with the defaults",
	}, "\n"))
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "probe":
		err = runProbe(args)
	case "history":
		err = runHistory(args)
	case "recompute":
		err = runRecompute(args)
	case "sign":
		err = runSign(args)
	case "config-example":
		var data []byte
		if data, err = appcfg.ExampleTOML(); err == nil {
			_, err = os.Stdout.Write(data)
		}
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func runProbe(args []string) error {
	fs := flag.NewFlagSet("probe", flag.ExitOnError)
	base := fs.String("url", envOr("CUBETIMER_URL", "http://localhost:8080"), "service base url")
	token := fs.String("token", os.Getenv("CUBETIMER_TOKEN"), "access token for the websocket check")
	_ = fs.Parse(args)

	status, body, err := fasthttp.GetTimeout(nil, strings.TrimRight(*base, "/")+"/healthz", 5*time.Second)
	if err != nil {
		return fmt.Errorf("healthz: %w", err)
	}
	log.Printf("/healthz status=%d body=%s", status, strings.TrimSpace(string(body)))

	if *token == "" {
		log.Println("no token; skipping websocket check")
		return nil
	}
	wsURL := "ws" + strings.TrimPrefix(strings.TrimRight(*base, "/"), "http") + "/ws?access_token=" + *token
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		return fmt.Errorf("ws dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "probe done")

	for i := 0; i < 2; i++ {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("ws read: %w", err)
		}
		var frame solvedto.ServerFrame
		if err := jsonx.Unmarshal(data, &frame); err != nil {
			return fmt.Errorf("ws decode: %w", err)
		}
		log.Printf("ws frame type=%s scramble=%q", frame.Type, frame.Scramble)
	}
	return nil
}

func runHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	base := fs.String("url", envOr("CUBETIMER_URL", "http://localhost:8080"), "service base url")
	token := fs.String("token", os.Getenv("CUBETIMER_TOKEN"), "access token")
	limit := fs.Int("limit", 12, "number of solves")
	_ = fs.Parse(args)
	if *token == "" {
		return fmt.Errorf("-token or CUBETIMER_TOKEN is required")
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)
	req.SetRequestURI(fmt.Sprintf("%s/api/solves?limit=%d", strings.TrimRight(*base, "/"), *limit))
	req.Header.Set("Authorization", "Bearer "+*token)
	if err := fasthttp.DoTimeout(req, resp, 10*time.Second); err != nil {
		return err
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return fmt.Errorf("status=%d body=%s", resp.StatusCode(), resp.Body())
	}
	var page solvedto.HistoryPage
	if err := jsonx.Unmarshal(resp.Body(), &page); err != nil {
		return fmt.Errorf("decode history: %w", err)
	}
	fmt.Println(solvepresenter.FormatHistory(&page))
	return nil
}

func runRecompute(args []string) error {
	fs := flag.NewFlagSet("recompute", flag.ExitOnError)
	workers := fs.Int("workers", 4, "concurrent owners")
	_ = fs.Parse(args)

	cfg, err := appcfg.Load()
	if err != nil {
		return err
	}
	if err := obslog.InitFromEnv(); err != nil {
		return err
	}
	app, err := appbuilder.New(cfg, obslog.L())
	if err != nil {
		return err
	}
	defer app.Close()
	if app.Reconciler == nil {
		return fmt.Errorf("recompute needs a server-side store, not %q", cfg.StoreBackend)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	owners := fs.Args()
	if len(owners) == 0 {
		lister, ok := app.Store().(store.OwnerLister)
		if cp, isCached := app.Store().(*store.CachedProfiles); isCached {
			lister, ok = cp.Store.(store.OwnerLister)
		}
		if !ok {
			return fmt.Errorf("store cannot list owners; pass owner ids as arguments")
		}
		if owners, err = lister.ListOwners(ctx); err != nil {
			return err
		}
	}

	failed := 0
	for _, res := range app.Reconciler.RecomputeAll(ctx, owners, *workers) {
		if res.Err != nil {
			failed++
			obslog.L().Warn("recompute_owner_failed", zap.String("owner_id", res.OwnerID), zap.Error(res.Err))
			continue
		}
		fmt.Printf("%s\n%s\n\n", res.OwnerID, solvepresenter.FormatProfile(solvepresenter.ToDTOProfile(res.Snapshot)))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d owners failed", failed, len(owners))
	}
	return nil
}

func runSign(args []string) error {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	secret := fs.String("secret", os.Getenv("AUTH_JWT_SECRET"), "HS256 secret")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: cubecheck sign [-ttl 1h] <owner-id>")
	}
	v, err := auth.NewVerifier(*secret)
	if err != nil {
		return err
	}
	token, err := v.Sign(fs.Arg(0), *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func envOr(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}
