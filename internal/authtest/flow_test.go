// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskFlow Contributors

package authtest_test

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/Lugadilu/TaskFlow/internal/auth"
	"github.com/Lugadilu/TaskFlow/internal/authtest"
)

var signingKey = []byte("flow-test-signing-key-0123456789")

var _ = Describe("Credential lifecycle", func() {
	var (
		ctx      context.Context
		clock    *authtest.Clock
		accounts *authtest.AccountRepository
		mailer   *authtest.Mailer
		svc      *auth.Service
		resets   *auth.PasswordResetService
		issuer   *auth.TokenIssuer
	)

	BeforeEach(func() {
		ctx = context.Background()
		clock = authtest.NewClock(time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC))
		accounts = authtest.NewAccountRepository()
		mailer = authtest.NewMailer()

		hasher, err := auth.NewArgon2idHasherWithParams(auth.Argon2Params{Memory: 1024, Time: 1, Threads: 1})
		Expect(err).NotTo(HaveOccurred())

		issuer, err = auth.NewTokenIssuer(auth.IssuerConfig{SigningKey: signingKey, Now: clock.Now})
		Expect(err).NotTo(HaveOccurred())

		svc, err = auth.NewAuthService(accounts, hasher, issuer, auth.WithClock(clock.Now))
		Expect(err).NotTo(HaveOccurred())

		resets, err = auth.NewPasswordResetService(accounts, hasher, mailer, auth.WithClock(clock.Now))
		Expect(err).NotTo(HaveOccurred())
	})

	It("registers, logs in, resets the password and logs in again", func() {
		_, err := svc.Register(ctx, "alice", "alice@x.com", "pw1")
		Expect(err).NotTo(HaveOccurred())

		token, err := svc.Login(ctx, "alice@x.com", "pw1")
		Expect(err).NotTo(HaveOccurred())
		claims, err := issuer.Verify(token)
		Expect(err).NotTo(HaveOccurred())
		Expect(claims.Email).To(Equal("alice@x.com"))
		Expect(claims.Username).To(Equal("alice"))
		Expect(claims.ExpiresAt.Time).To(BeTemporally("==", clock.Now().Add(24*time.Hour)))

		Expect(resets.RequestReset(ctx, "alice@x.com")).To(Equal(auth.ResetRequestedMessage))
		Expect(mailer.Sent()).To(HaveLen(1))
		resetToken := mailer.LastToken()
		Expect(resetToken).NotTo(BeEmpty())

		stored, err := accounts.GetByEmail(ctx, "alice@x.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(*stored.ResetTokenHash).To(Equal(auth.HashToken(resetToken)))
		Expect(*stored.ResetTokenExpiry).To(BeTemporally("==", clock.Now().Add(time.Hour)))

		Expect(resets.ResetWithToken(ctx, resetToken, "pw2")).To(Succeed())

		_, err = svc.Login(ctx, "alice@x.com", "pw1")
		Expect(err).To(MatchError(auth.ErrInvalidCredentials))

		_, err = svc.Login(ctx, "alice@x.com", "pw2")
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("registration", func() {
		It("rejects a duplicate email regardless of case and writes nothing", func() {
			_, err := svc.Register(ctx, "alice", "alice@x.com", "pw1")
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Register(ctx, "alice2", "ALICE@X.COM", "other")
			Expect(err).To(MatchError(auth.ErrAlreadyExists))
			Expect(accounts.Len()).To(Equal(1))
		})

		It("stores a digest rather than the password", func() {
			account, err := svc.Register(ctx, "alice", "alice@x.com", "pw1")
			Expect(err).NotTo(HaveOccurred())
			Expect(account.PasswordHash).To(HavePrefix("$argon2id$"))
			Expect(account.PasswordHash).NotTo(ContainSubstring("pw1"))
		})
	})

	Describe("login", func() {
		BeforeEach(func() {
			_, err := svc.Register(ctx, "alice", "alice@x.com", "pw1")
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns the same error for unknown email and wrong password", func() {
			_, unknown := svc.Login(ctx, "bob@x.com", "pw1")
			_, wrong := svc.Login(ctx, "alice@x.com", "nope")

			Expect(unknown).To(MatchError(auth.ErrInvalidCredentials))
			Expect(wrong).To(MatchError(auth.ErrInvalidCredentials))
			Expect(unknown.Error()).To(Equal(wrong.Error()))
		})
	})

	Describe("password reset", func() {
		BeforeEach(func() {
			_, err := svc.Register(ctx, "alice", "alice@x.com", "pw1")
			Expect(err).NotTo(HaveOccurred())
		})

		It("answers unknown emails identically without side effects", func() {
			known := resets.RequestReset(ctx, "alice@x.com")
			unknown := resets.RequestReset(ctx, "ghost@x.com")

			Expect(unknown).To(Equal(known))
			Expect(mailer.Sent()).To(HaveLen(1))
			Expect(mailer.Sent()[0].To).To(Equal("alice@x.com"))
		})

		It("accepts a token exactly once", func() {
			resets.RequestReset(ctx, "alice@x.com")
			token := mailer.LastToken()

			Expect(resets.ResetWithToken(ctx, token, "pw2")).To(Succeed())
			Expect(resets.ResetWithToken(ctx, token, "pw3")).To(MatchError(auth.ErrInvalidOrExpiredToken))

			stored, err := accounts.GetByEmail(ctx, "alice@x.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.ResetTokenHash).To(BeNil())
			Expect(stored.ResetTokenExpiry).To(BeNil())
		})

		It("rejects an expired token", func() {
			resets.RequestReset(ctx, "alice@x.com")
			token := mailer.LastToken()

			clock.Advance(time.Hour + time.Second)

			Expect(resets.ValidateToken(ctx, token)).To(MatchError(auth.ErrInvalidOrExpiredToken))
			Expect(resets.ResetWithToken(ctx, token, "pw2")).To(MatchError(auth.ErrInvalidOrExpiredToken))

			_, err := svc.Login(ctx, "alice@x.com", "pw1")
			Expect(err).NotTo(HaveOccurred())
		})

		It("invalidates the previous token when a new one is requested", func() {
			resets.RequestReset(ctx, "alice@x.com")
			first := mailer.LastToken()
			resets.RequestReset(ctx, "alice@x.com")
			second := mailer.LastToken()

			Expect(second).NotTo(Equal(first))
			Expect(resets.ResetWithToken(ctx, first, "pw2")).To(MatchError(auth.ErrInvalidOrExpiredToken))
			Expect(resets.ResetWithToken(ctx, second, "pw2")).To(Succeed())
		})

		It("lets only one of many concurrent resets win", func() {
			resets.RequestReset(ctx, "alice@x.com")
			token := mailer.LastToken()

			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes int
			)
			for range 8 {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					if resets.ResetWithToken(ctx, token, "pw2") == nil {
						mu.Lock()
						successes++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			Expect(successes).To(Equal(1))
		})

		It("keeps the window open when the mailer fails", func() {
			mailer.SetError(context.DeadlineExceeded)

			Expect(resets.RequestReset(ctx, "alice@x.com")).To(Equal(auth.ResetRequestedMessage))

			stored, err := accounts.GetByEmail(ctx, "alice@x.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.HasPendingReset(clock.Now())).To(BeTrue())
		})

		It("sweeps expired windows", func() {
			resets.RequestReset(ctx, "alice@x.com")
			clock.Advance(2 * time.Hour)

			sweeper, err := auth.NewResetSweeper(accounts, auth.WithClock(clock.Now))
			Expect(err).NotTo(HaveOccurred())

			cleared, err := sweeper.Sweep(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(cleared).To(Equal(int64(1)))

			stored, err := accounts.GetByEmail(ctx, "alice@x.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.ResetTokenHash).To(BeNil())
		})
	})

	Describe("digest upgrade", func() {
		It("never undoes a reset that completes while login is upgrading", func() {
			oldHasher, err := auth.NewArgon2idHasherWithParams(auth.Argon2Params{Memory: 2048, Time: 1, Threads: 1})
			Expect(err).NotTo(HaveOccurred())
			oldDigest, err := oldHasher.Hash("pw1")
			Expect(err).NotTo(HaveOccurred())
			account, err := auth.NewAccount("alice", "alice@x.com", oldDigest, clock.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(accounts.Create(ctx, account)).To(Succeed())

			resets.RequestReset(ctx, "alice@x.com")
			resetToken := mailer.LastToken()

			racing := &resetBeforeUpgrade{AccountRepository: accounts, before: func() {
				Expect(resets.ResetWithToken(ctx, resetToken, "pw2")).To(Succeed())
			}}
			hasher, err := auth.NewArgon2idHasherWithParams(auth.Argon2Params{Memory: 1024, Time: 1, Threads: 1})
			Expect(err).NotTo(HaveOccurred())
			upgrading, err := auth.NewAuthService(racing, hasher, issuer, auth.WithClock(clock.Now))
			Expect(err).NotTo(HaveOccurred())

			_, err = upgrading.Login(ctx, "alice@x.com", "pw1")
			Expect(err).NotTo(HaveOccurred())
			Expect(racing.calls).To(Equal(1))

			_, err = svc.Login(ctx, "alice@x.com", "pw1")
			Expect(err).To(MatchError(auth.ErrInvalidCredentials))
			_, err = svc.Login(ctx, "alice@x.com", "pw2")
			Expect(err).NotTo(HaveOccurred())
			Expect(resets.ResetWithToken(ctx, resetToken, "pw3")).To(MatchError(auth.ErrInvalidOrExpiredToken))
		})
	})
})

// resetBeforeUpgrade runs before ahead of the first digest upgrade, standing
// in for a reset that lands between login's read and its write.
type resetBeforeUpgrade struct {
	*authtest.AccountRepository
	before func()
	calls  int
}

func (r *resetBeforeUpgrade) UpgradePasswordHash(ctx context.Context, id ulid.ULID, oldHash, newHash string, now time.Time) error {
	r.calls++
	if r.calls == 1 {
		r.before()
	}
	return r.AccountRepository.UpgradePasswordHash(ctx, id, oldHash, newHash, now)
}
