// Package classifier talks to the external models that label waste images and
// write bounty descriptions, and validates what they send back.
package classifier

import (
	"context"

	"github.com/HacksterAman/Clean-Bounty/internal/imageprocessor"
	"github.com/HacksterAman/Clean-Bounty/internal/waste"
)

// Classifier labels an image with waste-type candidates.
type Classifier interface {
	Classify(ctx context.Context, img imageprocessor.Image) (waste.ClassificationResult, error)
}

// Describer writes a cleanup brief for a normalized classification result.
type Describer interface {
	Describe(ctx context.Context, result waste.ClassificationResult) (waste.BountyDescription, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, img imageprocessor.Image) (waste.ClassificationResult, error)

// Classify calls f.
func (f ClassifierFunc) Classify(ctx context.Context, img imageprocessor.Image) (waste.ClassificationResult, error) {
	return f(ctx, img)
}

// DescriberFunc adapts a function to Describer.
type DescriberFunc func(ctx context.Context, result waste.ClassificationResult) (waste.BountyDescription, error)

// Describe calls f.
func (f DescriberFunc) Describe(ctx context.Context, result waste.ClassificationResult) (waste.BountyDescription, error) {
	return f(ctx, result)
}

// Static returns a Classifier that always yields result. The use case serves
// cached classifications through it.
func Static(result waste.ClassificationResult) Classifier {
	return ClassifierFunc(func(ctx context.Context, _ imageprocessor.Image) (waste.ClassificationResult, error) {
		if err := ctx.Err(); err != nil {
			return waste.ClassificationResult{}, upstream("cache", err)
		}
		return result, nil
	})
}
