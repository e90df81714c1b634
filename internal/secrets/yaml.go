package secrets

import (
	"fmt"

	"github.com/oriys/raikiri/internal/domain"
	"github.com/oriys/raikiri/internal/errkind"
	"gopkg.in/yaml.v3"
)

// parseSecretYAML extracts the top-level mapping of b as an ordered
// sequence of (string, string) pairs. Plain map[string]string is not
// enough here: §8 requires get_secrets to round-trip the exact insertion
// order the YAML was written in, so this walks the yaml.Node tree
// directly instead of unmarshaling into a Go map.
func parseSecretYAML(b []byte) (domain.SecretMap, error) {
	if len(b) == 0 {
		return domain.SecretMap{}, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, errkind.Wrap(errkind.Parse, fmt.Errorf("secrets: parse yaml: %w", err))
	}
	if len(doc.Content) == 0 {
		return domain.SecretMap{}, nil
	}

	mapping := doc.Content[0]
	if mapping.Kind == 0 {
		return domain.SecretMap{}, nil
	}
	if mapping.Kind != yaml.MappingNode {
		return nil, errkind.Wrapf(errkind.Parse, "secrets: expected a YAML mapping at the top level, got kind %d", mapping.Kind)
	}

	pairs := make(domain.SecretMap, 0, len(mapping.Content)/2)
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		pairs = append(pairs, domain.SecretPair{
			Key:   mapping.Content[i].Value,
			Value: mapping.Content[i+1].Value,
		})
	}
	return pairs, nil
}

// serializeSecretYAML renders pairs back to canonical YAML text,
// preserving insertion order.
func serializeSecretYAML(pairs domain.SecretMap) ([]byte, error) {
	mapping := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, p := range pairs {
		mapping.Content = append(mapping.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: p.Key},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: p.Value},
		)
	}
	doc := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{mapping}}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, errkind.Wrap(errkind.Parse, fmt.Errorf("secrets: emit yaml: %w", err))
	}
	return out, nil
}

// serializeSecretYAMLBlocking runs the (CPU-bound) YAML emission on its
// own goroutine and waits for it, mirroring §5's "CPU-heavy YAML
// emission is offloaded to a blocking helper task" — the emitter itself
// is synchronous, but callers on a cooperative scheduler still shouldn't
// run it inline on a shared worker.
func serializeSecretYAMLBlocking(pairs domain.SecretMap) ([]byte, error) {
	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := serializeSecretYAML(pairs)
		done <- result{out, err}
	}()
	r := <-done
	return r.out, r.err
}
