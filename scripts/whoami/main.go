// Command whoami is a local target for the built-in presets. It answers
// like the traefik/whoami image: hostname, address and request line.
package main

import (
	"encoding/json"
	"net"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type whoami struct {
	Hostname   string              `json:"hostname"`
	Address    []string            `json:"address"`
	RemoteAddr string              `json:"remoteAddr"`
	Method     string              `json:"method"`
	URL        string              `json:"url"`
	Headers    map[string][]string `json:"headers"`
}

func localAddresses() []string {
	var out []string
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return out
	}
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			out = append(out, ipnet.IP.String())
		}
	}
	return out
}

func newRouter(log logrus.FieldLogger) *mux.Router {
	hostname, _ := os.Hostname()
	addresses := localAddresses()

	r := mux.NewRouter()
	r.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(whoami{
			Hostname:   hostname,
			Address:    addresses,
			RemoteAddr: req.RemoteAddr,
			Method:     req.Method,
			URL:        req.URL.String(),
			Headers:    req.Header,
		})
	})

	// Fixed status, for exercising http_req_failed thresholds.
	r.HandleFunc("/status/{code:[0-9]{3}}", func(w http.ResponseWriter, req *http.Request) {
		code, _ := strconv.Atoi(mux.Vars(req)["code"])
		w.WriteHeader(code)
	})

	// Slow responses, for exercising latency thresholds.
	r.HandleFunc("/delay/{ms:[0-9]+}", func(w http.ResponseWriter, req *http.Request) {
		ms, _ := strconv.Atoi(mux.Vars(req)["ms"])
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
			w.WriteHeader(http.StatusOK)
		case <-req.Context().Done():
		}
	})

	r.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte("healthy"))
	})

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			log.WithFields(logrus.Fields{"method": req.Method, "path": req.URL.Path}).Debug("request")
			next.ServeHTTP(w, req)
		})
	})
	return r
}

func main() {
	var (
		addr    string
		verbose bool
	)
	log := logrus.New()

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Serve a whoami-style target for local load tests",
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				log.SetLevel(logrus.DebugLevel)
			}
			server := &http.Server{
				Addr:              addr,
				Handler:           newRouter(log),
				ReadTimeout:       5 * time.Second,
				WriteTimeout:      30 * time.Second,
				IdleTimeout:       120 * time.Second,
				ReadHeaderTimeout: 2 * time.Second,
			}
			log.WithFields(logrus.Fields{"addr": addr, "cpus": runtime.NumCPU()}).Info("whoami listening")
			return server.ListenAndServe()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log every request")

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
