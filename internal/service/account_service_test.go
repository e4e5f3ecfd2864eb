package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"people-registry/internal/core/domain"
	"people-registry/internal/core/ports/mocks"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type accountTestDeps struct {
	svc        *AccountServiceImpl
	accounts   *mocks.MockAccountRepository
	funds      *mocks.MockFundsSubstrate
	transactor *mocks.MockDBTransactor
	hashSvc    *mocks.MockHashService
	tokenSvc   *mocks.MockTokenService
	ctrl       *gomock.Controller
}

var testAllowance = decimal.NewFromInt(100)

func setupAccountService(t *testing.T) *accountTestDeps {
	ctrl := gomock.NewController(t)
	d := &accountTestDeps{
		accounts:   mocks.NewMockAccountRepository(ctrl),
		funds:      mocks.NewMockFundsSubstrate(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		hashSvc:    mocks.NewMockHashService(ctrl),
		tokenSvc:   mocks.NewMockTokenService(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewAccountService(d.accounts, d.funds, d.transactor, d.hashSvc, d.tokenSvc, testAllowance, newTestLogger())
	return d
}

func TestAccountService_Register_Success(t *testing.T) {
	d := setupAccountService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}

	// Expect: check username uniqueness
	d.accounts.EXPECT().GetByUsername(ctx, "alice").Return(nil, nil)
	// Expect: hash password
	d.hashSvc.EXPECT().Hash("StrongP@ss123").Return("$argon2id$hashed", nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	// Expect: create account
	d.accounts.EXPECT().Create(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, a *domain.Account) error {
			assert.Equal(t, "alice", a.Username)
			assert.Equal(t, "$argon2id$hashed", a.PasswordHash)
			return nil
		},
	)
	// Expect: open funds with the allowance
	d.funds.EXPECT().Open(ctx, tx, gomock.Any(), testAllowance).Return(nil)

	account, err := d.svc.Register(ctx, "alice", "StrongP@ss123")
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.True(t, strings.HasPrefix(account.Address.String(), "0x"))
	assert.Len(t, account.Address.String(), 2+2*domain.AddressLength)
}

func TestAccountService_Register_DuplicateUsername(t *testing.T) {
	d := setupAccountService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	d.accounts.EXPECT().GetByUsername(ctx, "alice").Return(&domain.Account{Username: "alice"}, nil)

	account, err := d.svc.Register(ctx, "alice", "StrongP@ss123")
	assert.Nil(t, account)
	assertAppError(t, err, "AUTH_002")
}

func TestAccountService_Register_RaceOnCreate(t *testing.T) {
	d := setupAccountService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}

	d.accounts.EXPECT().GetByUsername(ctx, "alice").Return(nil, nil)
	d.hashSvc.EXPECT().Hash(gomock.Any()).Return("hash", nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.accounts.EXPECT().Create(ctx, tx, gomock.Any()).
		Return(fmt.Errorf("create account: %w", domain.ErrDuplicate))

	_, err := d.svc.Register(ctx, "alice", "StrongP@ss123")
	assertAppError(t, err, "AUTH_002")
}

func TestAccountService_Register_HashFailure(t *testing.T) {
	d := setupAccountService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	d.accounts.EXPECT().GetByUsername(ctx, "alice").Return(nil, nil)
	d.hashSvc.EXPECT().Hash(gomock.Any()).Return("", errors.New("entropy exhausted"))

	_, err := d.svc.Register(ctx, "alice", "StrongP@ss123")
	assertAppError(t, err, "SYS_001")
}

func TestAccountService_Login_Success(t *testing.T) {
	d := setupAccountService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	account := &domain.Account{Address: testCaller, Username: "alice", PasswordHash: "hash"}
	expiry := time.Now().Add(time.Hour)

	d.accounts.EXPECT().GetByUsername(ctx, "alice").Return(account, nil)
	d.hashSvc.EXPECT().Verify("secret", "hash").Return(true, nil)
	d.tokenSvc.EXPECT().Generate(testCaller).Return("jwt-token", expiry, nil)

	token, exp, err := d.svc.Login(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "jwt-token", token)
	assert.Equal(t, expiry, exp)
}

func TestAccountService_Login_InvalidCredentials(t *testing.T) {
	tests := []struct {
		name  string
		setup func(d *accountTestDeps)
	}{
		{
			name: "unknown user",
			setup: func(d *accountTestDeps) {
				d.accounts.EXPECT().GetByUsername(gomock.Any(), "alice").Return(nil, nil)
			},
		},
		{
			name: "wrong password",
			setup: func(d *accountTestDeps) {
				d.accounts.EXPECT().GetByUsername(gomock.Any(), "alice").
					Return(&domain.Account{Address: testCaller, PasswordHash: "hash"}, nil)
				d.hashSvc.EXPECT().Verify("secret", "hash").Return(false, nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := setupAccountService(t)
			defer d.ctrl.Finish()
			tt.setup(d)

			token, _, err := d.svc.Login(context.Background(), "alice", "secret")
			assert.Empty(t, token)
			assertAppError(t, err, "AUTH_001")
		})
	}
}

func TestAccountService_Profile(t *testing.T) {
	d := setupAccountService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	account := &domain.Account{Address: testCaller, Username: "alice"}

	d.accounts.EXPECT().GetByAddress(ctx, testCaller).Return(account, nil)
	d.funds.EXPECT().BalanceOf(ctx, testCaller).Return(decimal.RequireFromString("99.5"), nil)

	profile, err := d.svc.Profile(ctx, testCaller)
	require.NoError(t, err)
	assert.Equal(t, account, profile.Account)
	assert.Equal(t, "99.5", profile.Funds.String())
}

func TestAccountService_Profile_NotFound(t *testing.T) {
	d := setupAccountService(t)
	defer d.ctrl.Finish()

	d.accounts.EXPECT().GetByAddress(gomock.Any(), testStranger).Return(nil, nil)

	_, err := d.svc.Profile(context.Background(), testStranger)
	assertAppError(t, err, "REG_004")
}
