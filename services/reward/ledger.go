package reward

import (
	"context"
	"strings"

	"smallbiznis-challenge/pkg/config"
	"smallbiznis-challenge/pkg/errutil"
	"smallbiznis-challenge/pkg/logger"

	ledgerv1 "github.com/smallbiznis/go-genproto/smallbiznis/ledger/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Credit describes one idempotent ledger credit.
type Credit struct {
	IdempotencyKey string
	UserID         string
	Amount         int64
	Reason         string
	Metadata       map[string]string
}

//go:generate mockgen -source=ledger.go -destination=mock_ledger_test.go -package=reward

// Ledger credits user balances. Replaying a credit with a known idempotency
// key must succeed without crediting twice.
type Ledger interface {
	Credit(ctx context.Context, credit Credit) error
}

const duplicateReference = "reference_id already exists"

type grpcLedger struct {
	client   ledgerv1.LedgerServiceClient
	tenantID string
}

// NewGRPCLedger credits through the ledger service's AddEntry RPC, using the
// idempotency key as the entry reference.
func NewGRPCLedger(client ledgerv1.LedgerServiceClient, cfg *config.Config) Ledger {
	return &grpcLedger{client: client, tenantID: cfg.Platform.ID}
}

func (l *grpcLedger) Credit(ctx context.Context, c Credit) error {
	_, err := l.client.AddEntry(ctx, &ledgerv1.AddEntryRequest{
		TenantId:    l.tenantID,
		MemberId:    c.UserID,
		Type:        ledgerv1.EntryType_CREDIT,
		Amount:      c.Amount,
		ReferenceId: c.IdempotencyKey,
		Description: c.Reason,
		Metadata:    c.Metadata,
	})
	if err == nil {
		return nil
	}
	if isDuplicateReference(err) {
		logger.Ctx(ctx).Info("ledger entry already recorded", zap.String("reference_id", c.IdempotencyKey))
		return nil
	}
	return errutil.FromGRPCError("ledger credit failed", err)
}

func isDuplicateReference(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return strings.Contains(err.Error(), duplicateReference)
	}
	return st.Code() == codes.AlreadyExists || strings.Contains(st.Message(), duplicateReference)
}
