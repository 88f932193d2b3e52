// Command veild runs one intercepting proxy gateway instance: a SOCKS5
// listener, an HTTP/1.1 listener (CONNECT and absolute-form), both driven by
// the same routing rule list and, optionally, the same MitM cert engine.
package main

import (
	"flag"
	"os"

	"github.com/mohanson/veil/lib/gracefulexit"
	"github.com/mohanson/veil/proxy"
	"github.com/mohanson/veil/router"
	veil "github.com/mohanson/veil"
)

func main() {
	socksListen := flag.String("socks-listen", "127.0.0.1:1080", "SOCKS5 ingress address, empty to disable")
	httpListen := flag.String("http-listen", "127.0.0.1:8080", "HTTP/1.1 ingress address, empty to disable")
	rulePath := flag.String("rules", "", "path to a routing-rule text file; empty means FINAL,DIRECT")
	proxyProtocol := flag.Bool("proxy-protocol", false, "unwrap PROXY protocol v1/v2 headers on both listeners")
	mitmP12 := flag.String("mitm-p12", "", "path to a root PKCS#12 bundle; empty disables MitM")
	mitmPass := flag.String("mitm-pass", "", "passphrase for -mitm-p12")
	flag.Parse()

	rules, err := loadRules(*rulePath)
	if err != nil {
		veil.Log().Fatalw("veild: load rules", "err", err)
	}

	profile := proxy.Profile{
		SocksListen:  *socksListen,
		HTTPListen:   *httpListen,
		ProxyProtocol: *proxyProtocol,
		Rules:        rules,
		Outbounds: map[string]proxy.OutboundConfig{
			"DIRECT": {Kind: "DIRECT"},
			"REJECT": {Kind: "REJECT"},
		},
	}
	if *mitmP12 != "" {
		bundle, err := os.ReadFile(*mitmP12)
		if err != nil {
			veil.Log().Fatalw("veild: read mitm p12", "err", err)
		}
		profile.MitM = &proxy.MitMConfig{RootP12: bundle, Passphrase: *mitmPass}
	}

	orch, err := proxy.New(profile)
	if err != nil {
		veil.Log().Fatalw("veild: build orchestrator", "err", err)
	}
	if err := orch.Listen(profile); err != nil {
		veil.Log().Fatalw("veild: listen", "err", err)
	}

	go func() {
		gracefulexit.Wait()
		veil.Log().Infow("veild: shutting down")
		orch.Shutdown()
	}()

	orch.Serve()
}

// loadRules parses a routing-rule file, or a trivial always-DIRECT rule
// list when path is empty. That is enough to exercise the core without a
// real config system, per this command's documented scope.
func loadRules(path string) ([]router.Rule, error) {
	if path == "" {
		return []router.Rule{{Kind: router.KindFinal, Policy: "DIRECT"}}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return router.ParseRuleList(f)
}
