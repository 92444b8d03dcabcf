// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package redis_test

import (
	"context"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	goredis "github.com/redis/go-redis/v9"

	"github.com/xybot/xyweb/internal/auth"
	"github.com/xybot/xyweb/internal/auth/redis"
)

var _ = Describe("Authority over Redis", func() {
	var (
		ctx       context.Context
		mr        *miniredis.Miniredis
		client    *goredis.Client
		store     *redis.Store
		authority *auth.Authority
		now       time.Time
	)

	hasher := auth.NewPBKDF2HasherWithIterations(1000)

	newAuthority := func() *auth.Authority {
		a, err := auth.NewAuthority(ctx, store.Users(), store.Tokens(), store.Secrets(), hasher,
			auth.WithClock(func() time.Time { return now }),
			auth.WithTokenTTL(24*time.Hour))
		Expect(err).NotTo(HaveOccurred())
		return a
	}

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

		var err error
		mr, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())
		client = goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
		store = redis.New(client)
		authority = newAuthority()
	})

	AfterEach(func() {
		_ = client.Close()
		mr.Close()
	})

	It("bootstraps an empty store once", func() {
		Expect(mr.Exists(store.SecretKey())).To(BeTrue())
		secret, err := mr.Get(store.SecretKey())
		Expect(err).NotTo(HaveOccurred())
		Expect(secret).To(HaveLen(64))

		Expect(authority.ChangePassword(ctx, "admin", "admin123", "rotated")).To(Succeed())
		newAuthority()

		_, err = authority.Authenticate(ctx, "admin", "rotated")
		Expect(err).NotTo(HaveOccurred())
		again, err := mr.Get(store.SecretKey())
		Expect(err).NotTo(HaveOccurred())
		Expect(again).To(Equal(secret))
	})

	It("walks the full account lifecycle", func() {
		session, err := authority.Authenticate(ctx, "admin", "admin123")
		Expect(err).NotTo(HaveOccurred())
		Expect(session.Role).To(Equal(auth.RoleAdmin))
		Expect(mr.Exists(store.TokenKey(auth.TokenKey(session.Token)))).To(BeTrue())
		Expect(mr.Exists(store.TokenKey(session.Token))).To(BeFalse(), "raw bearer tokens are never stored")

		Expect(authority.AddUser(ctx, "bob", "pw", auth.RoleUser)).To(Succeed())
		Expect(authority.AddUser(ctx, "bob", "other", auth.RoleAdmin)).To(MatchError(auth.ErrUserAlreadyExists))

		bob, err := authority.Authenticate(ctx, "bob", "pw")
		Expect(err).NotTo(HaveOccurred())

		id, err := authority.ValidateToken(ctx, bob.Token)
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal(&auth.Identity{Username: "bob", Role: auth.RoleUser}))

		Expect(authority.DeleteUser(ctx, "admin")).To(MatchError(auth.ErrLastAdminProtected))
		Expect(authority.DeleteUser(ctx, "bob")).To(Succeed())

		_, err = authority.ValidateToken(ctx, bob.Token)
		Expect(err).To(MatchError(auth.ErrInvalidToken))

		users, err := authority.ListUsers(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(users).To(HaveLen(1))
		Expect(users["admin"].PasswordHash).To(BeEmpty())
	})

	It("expires tokens logically and physically", func() {
		session, err := authority.Authenticate(ctx, "admin", "admin123")
		Expect(err).NotTo(HaveOccurred())
		key := store.TokenKey(auth.TokenKey(session.Token))
		Expect(mr.TTL(key)).To(Equal(24 * time.Hour))

		now = now.Add(24*time.Hour + time.Second)
		_, err = authority.ValidateToken(ctx, session.Token)
		Expect(err).To(MatchError(auth.ErrTokenExpired))
		Expect(mr.Exists(key)).To(BeFalse())

		again, err := authority.Authenticate(ctx, "admin", "admin123")
		Expect(err).NotTo(HaveOccurred())
		mr.FastForward(24 * time.Hour)
		_, err = authority.ValidateToken(ctx, again.Token)
		Expect(err).To(MatchError(auth.ErrTokenNotFound))
	})

	It("revokes idempotently", func() {
		session, err := authority.Authenticate(ctx, "admin", "admin123")
		Expect(err).NotTo(HaveOccurred())

		Expect(authority.RevokeToken(ctx, session.Token)).To(BeTrue())
		Expect(authority.RevokeToken(ctx, session.Token)).To(BeFalse())
	})

	It("keeps one admin under concurrent deletes from separate processes", func() {
		Expect(authority.AddUser(ctx, "root", "pw", auth.RoleAdmin)).To(Succeed())

		// A second client stands in for another process sharing the store.
		other := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
		defer other.Close()
		peer, err := auth.NewAuthority(ctx, redis.New(other).Users(), redis.New(other).Tokens(),
			redis.New(other).Secrets(), hasher)
		Expect(err).NotTo(HaveOccurred())

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, a := range []*auth.Authority{authority, peer} {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				errs[i] = a.DeleteUser(ctx, []string{"admin", "root"}[i])
			}()
		}
		wg.Wait()

		users, err := authority.ListUsers(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(users).To(HaveLen(1))

		failed := 0
		for _, err := range errs {
			if err != nil {
				Expect(err).To(MatchError(auth.ErrLastAdminProtected))
				failed++
			}
		}
		Expect(failed).To(Equal(1))
	})

	It("reports an unreachable store distinctly from refusals", func() {
		mr.Close()

		_, err := authority.Authenticate(ctx, "admin", "admin123")
		Expect(err).To(MatchError(auth.ErrStoreUnavailable))
		Expect(err).NotTo(MatchError(auth.ErrInvalidCredentials))
	})
})
