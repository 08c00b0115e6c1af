package auth

import (
	"net"
	"net/http"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"skill-runner/pkg/logging"
)

// ReviewerResolver maps client IP addresses to reviewer names loaded from a
// YAML file of the form
//
//	"10.0.1.5": ana.garcia
//	"10.0.1.8": luis.perez
type ReviewerResolver struct {
	mu       sync.RWMutex
	ipToName map[string]string
	loaded   bool
	yamlPath string
	log      *logging.ComponentLogger
}

// NewReviewerResolver loads path. A missing or broken file leaves the
// resolver empty, which blocks every review until Reload succeeds.
func NewReviewerResolver(path string, logger *logging.Logger) *ReviewerResolver {
	if logger == nil {
		logger = logging.Default()
	}
	r := &ReviewerResolver{
		ipToName: make(map[string]string),
		yamlPath: path,
		log:      logger.WithComponent("auth"),
	}
	if path == "" {
		r.log.Warn("no reviewers file configured; reviews are disabled")
		return r
	}
	if err := r.loadConfig(path); err != nil {
		r.log.Error("reviewers file not loaded; reviews are blocked", err, logging.String("path", path))
		return r
	}
	r.log.Info("reviewer IP mappings loaded", logging.String("path", path), logging.Int("entries", r.Len()))
	return r
}

func (r *ReviewerResolver) loadConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var config map[string]string
	if err := yaml.Unmarshal(data, &config); err != nil {
		return err
	}
	clean := make(map[string]string, len(config))
	for ip, name := range config {
		if name = strings.TrimSpace(name); name != "" {
			clean[strings.TrimSpace(ip)] = name
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.ipToName = clean
	r.loaded = true
	return nil
}

// Reload re-reads the reviewers file.
func (r *ReviewerResolver) Reload() error {
	if r.yamlPath == "" {
		return nil
	}
	return r.loadConfig(r.yamlPath)
}

func (r *ReviewerResolver) IsLoaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

func (r *ReviewerResolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ipToName)
}

// Reviewer resolves the request's client IP to a reviewer name.
func (r *ReviewerResolver) Reviewer(req *http.Request) (string, bool) {
	ip := ClientIP(req)

	r.mu.RLock()
	name, found := r.ipToName[ip]
	r.mu.RUnlock()

	if !found {
		r.log.Warn("unknown reviewer IP", logging.String("ip", ip))
	}
	return name, found
}

// ClientIP returns the originating client address, honouring
// X-Forwarded-For and X-Real-IP from a reverse proxy.
func ClientIP(req *http.Request) string {
	if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(req.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	ip, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return ip
}
