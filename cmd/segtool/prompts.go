package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Faultbox/instructmesh/internal/segmentation"
	"github.com/Faultbox/instructmesh/pkg/math"
)

// parsePrompt parses "x,y,z" or "x,y,z:neg" (also "pos", "+", "-") into a
// model-space prompt point.
func parsePrompt(s string) (segmentation.PromptPoint, error) {
	coords, label, _ := strings.Cut(s, ":")

	sign := segmentation.Positive
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "pos", "positive", "+":
	case "neg", "negative", "-":
		sign = segmentation.Negative
	default:
		return segmentation.PromptPoint{}, fmt.Errorf("prompt %q: unknown label %q", s, label)
	}

	p, err := parseVec3(coords)
	if err != nil {
		return segmentation.PromptPoint{}, fmt.Errorf("prompt %q: %w", s, err)
	}
	return segmentation.PromptPoint{Point: p, Sign: sign}, nil
}

func parseVec3(s string) (math.Vec3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return math.Vec3{}, fmt.Errorf("want x,y,z, got %d values", len(parts))
	}
	var v [3]float32
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return math.Vec3{}, err
		}
		v[i] = float32(f)
	}
	return math.FromArray(v), nil
}
