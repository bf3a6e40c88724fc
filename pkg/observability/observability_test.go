package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonate-labs/sonate/core/pkg/contracts"
	"github.com/sonate-labs/sonate/core/pkg/crypto"
)

func TestDisabledProviderIsInert(t *testing.T) {
	ctx := context.Background()
	p, err := New(ctx, &Config{Enabled: false})
	require.NoError(t, err)

	// All record paths must be safe no-ops without initialized instruments.
	p.RecordSigned(ctx, "v1")
	p.RecordVerification(ctx, &crypto.VerificationResult{Valid: false})
	p.RecordEvaluation(ctx, &contracts.PolicyEnforcementResult{
		Status: contracts.StatusBlocked,
		Violations: []contracts.ConstraintViolation{{
			ViolationType: "pii_detected",
			Severity:      contracts.SeverityBlock,
		}},
	}, 10*time.Millisecond)
	p.RecordVerification(ctx, nil)
	p.RecordEvaluation(ctx, nil, 0)

	assert.Nil(t, p.Tracer())
	assert.NoError(t, p.Shutdown(ctx))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "sonate-core", cfg.ServiceName)
	assert.Equal(t, contracts.ReceiptVersion, cfg.ServiceVersion)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.True(t, cfg.Enabled)
}

func TestNewNilConfigUsesDefaults(t *testing.T) {
	// nil config resolves to defaults; we only exercise the disabled branch
	// here because the enabled path dials an OTLP endpoint.
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p)
}
