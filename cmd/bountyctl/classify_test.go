package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/HacksterAman/Clean-Bounty/internal/classifier"
	"github.com/HacksterAman/Clean-Bounty/internal/imageprocessor"
	"github.com/HacksterAman/Clean-Bounty/internal/usecase"
	"github.com/HacksterAman/Clean-Bounty/internal/waste"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR-cli")

func newPipeline(cls classifier.Classifier, d classifier.Describer) *usecase.SubmissionUseCase {
	return usecase.NewSubmissionUseCase(nil, nil, cls, d, zap.NewNop())
}

func fixedResult() classifier.Classifier {
	return classifier.ClassifierFunc(func(context.Context, imageprocessor.Image) (waste.ClassificationResult, error) {
		return waste.ClassificationResult{Candidates: []waste.Candidate{
			{Type: "Plastic", Confidence: 0.7, Description: "bottle", Points: 10},
			{Type: "Paper", Confidence: 0.5, Description: "box", Points: 5},
		}}, nil
	})
}

var bounty = classifier.DescriberFunc(func(context.Context, waste.ClassificationResult) (waste.BountyDescription, error) {
	return waste.BountyDescription{Title: "Park sweep", TargetWasteTypes: []string{"Plastic", "Paper"}, PotentialHazards: "sharp edges"}, nil
})

func TestRunClassifyPrintsCandidatesAndBounty(t *testing.T) {
	var out bytes.Buffer

	err := runClassify(context.Background(), &out, newPipeline(fixedResult(), bounty), pngBytes, classifyOptions{})

	require.NoError(t, err)
	assert.Contains(t, out.String(), "* Plastic")
	assert.Contains(t, out.String(), "58.3%")
	assert.Contains(t, out.String(), "Bounty: Park sweep")
	assert.Contains(t, out.String(), "Targets:  Plastic, Paper")
	assert.NotContains(t, out.String(), "Report")
}

func TestRunClassifySelectAndClaim(t *testing.T) {
	var out bytes.Buffer
	opts := classifyOptions{selectType: "paper", claim: true, hasLoc: true, lat: 10, lng: 20}

	err := runClassify(context.Background(), &out, newPipeline(fixedResult(), bounty), pngBytes, opts)

	require.NoError(t, err)
	assert.Contains(t, out.String(), "Selected: Paper")
	assert.Contains(t, out.String(), "paper waste has been identified")
	assert.Contains(t, out.String(), "Location: 10.000000, 20.000000")
	assert.Contains(t, out.String(), "Claimed 5 points. Balance: 5")
}

func TestRunClassifyInvalidSelection(t *testing.T) {
	var out bytes.Buffer

	err := runClassify(context.Background(), &out, newPipeline(fixedResult(), bounty), pngBytes, classifyOptions{selectType: "Glass"})

	assert.ErrorIs(t, err, waste.ErrInvalidSelection)
}

func TestRunClassifyReportsFailure(t *testing.T) {
	failing := classifier.ClassifierFunc(func(context.Context, imageprocessor.Image) (waste.ClassificationResult, error) {
		return waste.ClassificationResult{}, waste.ErrSchema
	})
	var out bytes.Buffer

	err := runClassify(context.Background(), &out, newPipeline(failing, bounty), pngBytes, classifyOptions{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema_error")
}

func TestRunClassifyDescriptionWarning(t *testing.T) {
	broken := classifier.DescriberFunc(func(context.Context, waste.ClassificationResult) (waste.BountyDescription, error) {
		return waste.BountyDescription{}, errors.New("quota exceeded")
	})
	var out bytes.Buffer

	err := runClassify(context.Background(), &out, newPipeline(fixedResult(), broken), pngBytes, classifyOptions{confirm: true})

	require.NoError(t, err)
	assert.Contains(t, out.String(), "Bounty unavailable")
	assert.Contains(t, out.String(), "plastic waste item has been identified")
}

func TestRunClassifyRejectsNonImage(t *testing.T) {
	var out bytes.Buffer

	err := runClassify(context.Background(), &out, newPipeline(fixedResult(), bounty), []byte("hello"), classifyOptions{})

	assert.ErrorIs(t, err, waste.ErrEncoding)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "bountyctl dev")
}

func TestClassifyRequiresBothCoordinates(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"classify", "missing.png", "--lat", "1"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--lat and --lng")
}

func TestImageTypeFor(t *testing.T) {
	cases := map[string]string{
		"photo.HEIC": "image/heic",
		"photo.heif": "image/heif",
		"photo.png":  "image/png",
		"photo":      "",
	}
	for path, want := range cases {
		assert.Equal(t, want, imageTypeFor(path), path)
	}
}

func TestRunClassifyPassesContentType(t *testing.T) {
	var out bytes.Buffer
	heic := []byte("\x00\x00\x00\x18ftypheic\x00\x00\x00\x00mif1heic")

	err := runClassify(context.Background(), &out, newPipeline(fixedResult(), bounty), heic, classifyOptions{contentType: "image/heic"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Plastic")

	err = runClassify(context.Background(), &out, newPipeline(fixedResult(), bounty), heic, classifyOptions{})
	assert.ErrorIs(t, err, waste.ErrEncoding)
}
