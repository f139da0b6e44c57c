package campus

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Catalogue is the institution-specific configuration: which email domains
// count as verified campus addresses and which tech/tag options the UI offers.
type Catalogue struct {
	Name         string   `json:"name"`
	EmailDomains []string `json:"email_domains"`
	TechStack    []string `json:"tech_stack"`
	Tags         []string `json:"tags"`
}

var defaultCatalogue = Catalogue{
	Name:         "University of Houston",
	EmailDomains: []string{"uh.edu", "cougarnet.uh.edu"},
	TechStack: []string{
		"JavaScript", "TypeScript", "Python", "Java", "C++", "C#", "Go", "Rust",
		"React", "Next.js", "Vue", "Angular", "Svelte",
		"Node.js", "Express", "Django", "Flask", "Spring Boot",
		"PostgreSQL", "MySQL", "MongoDB", "Redis", "Firebase",
		"AWS", "GCP", "Azure", "Vercel",
		"Docker", "Kubernetes",
		"TensorFlow", "PyTorch", "OpenAI",
		"React Native", "Flutter", "Swift", "Kotlin",
		"Tailwind CSS", "GraphQL", "REST API",
	},
	Tags: []string{
		"Web App", "Mobile App", "Desktop App", "CLI Tool",
		"AI/ML", "Data Science", "DevOps", "Cybersecurity",
		"Game Dev", "Blockchain", "IoT", "AR/VR",
		"Open Source", "Hackathon", "Research", "Course Project",
		"Startup", "Non-Profit",
	},
}

type Registry struct {
	mu  sync.RWMutex
	cat Catalogue
}

func NewRegistry() *Registry {
	return &Registry{cat: defaultCatalogue}
}

// LoadFromFile reads a catalogue file. Fields left empty in the file keep
// their defaults. An empty path yields the default catalogue.
func LoadFromFile(path string) (*Registry, error) {
	r := NewRegistry()
	if path == "" {
		return r, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read campus config: %w", err)
	}

	var file Catalogue
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse campus config: %w", err)
	}
	r.Replace(file)
	return r, nil
}

// Replace swaps in cat, keeping defaults for empty fields.
func (r *Registry) Replace(cat Catalogue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cat.Name != "" {
		r.cat.Name = cat.Name
	}
	if len(cat.EmailDomains) > 0 {
		r.cat.EmailDomains = lower(cat.EmailDomains)
	}
	if len(cat.TechStack) > 0 {
		r.cat.TechStack = cat.TechStack
	}
	if len(cat.Tags) > 0 {
		r.cat.Tags = cat.Tags
	}
}

func (r *Registry) Get() Catalogue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cat
}

// IsCampusEmail reports whether the address's domain is exactly one of the
// campus domains. Subdomains do not match unless listed.
func (r *Registry) IsCampusEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return false
	}
	domain := strings.ToLower(email[at+1:])

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.cat.EmailDomains {
		if d == domain {
			return true
		}
	}
	return false
}

func lower(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(strings.TrimSpace(s))
	}
	return out
}
