package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainDefinition prefixes definition hashes.
// The version suffix allows the hashed shape to change later.
const DomainDefinition = "procflow/definition/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DefinitionHash computes the content hash of a definition's graph.
//
// Only key, name, nodes and flows take part. ID, Version and DeployedAt are
// assigned by deployment and are excluded, so redeploying the same graph
// yields the same hash.
func DefinitionHash(def ProcessDefinition) (string, error) {
	nodes := make(Array, len(def.Nodes))
	for i, n := range def.Nodes {
		nodes[i] = Object{
			"id":            String(n.ID),
			"kind":          String(n.Kind),
			"name":          String(n.Name),
			"assignee":      String(n.Assignee),
			"documentation": String(n.Documentation),
		}
	}
	flows := make(Array, len(def.Flows))
	for i, f := range def.Flows {
		flows[i] = Object{
			"id":     String(f.ID),
			"source": String(f.Source),
			"target": String(f.Target),
		}
	}

	canonical, err := MarshalCanonical(Object{
		"key":   String(def.Key),
		"name":  String(def.Name),
		"nodes": nodes,
		"flows": flows,
	})
	if err != nil {
		return "", fmt.Errorf("DefinitionHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainDefinition, canonical), nil
}

// MustDefinitionHash is like DefinitionHash but panics on error.
// Use only in tests.
func MustDefinitionHash(def ProcessDefinition) string {
	h, err := DefinitionHash(def)
	if err != nil {
		panic(err)
	}
	return h
}
