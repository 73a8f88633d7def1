// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

//go:build integration

package kv_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/portico/portico/internal/kv"
)

var _ = Describe("PostgresStore", Ordered, func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		store     *kv.PostgresStore
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("portico"),
			postgres.WithUsername("portico"),
			postgres.WithPassword("portico"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second)),
		)
		Expect(err).NotTo(HaveOccurred())

		dsn, err := container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())

		migrator, err := kv.NewMigrator(dsn)
		Expect(err).NotTo(HaveOccurred())
		Expect(migrator.Up()).To(Succeed())
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeNumerically(">", 0))
		Expect(dirty).To(BeFalse())
		Expect(migrator.Close()).To(Succeed())

		store, err = kv.NewPostgresStore(ctx, dsn)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if store != nil {
			store.Close()
		}
		if container != nil {
			Expect(container.Terminate(ctx)).To(Succeed())
		}
	})

	It("pings", func() {
		Expect(store.Ping(ctx)).To(Succeed())
	})

	It("creates once and rejects duplicates", func() {
		v, err := store.Create(ctx, "user:alice", []byte(`{"username":"alice"}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(int64(1)))

		_, err = store.Create(ctx, "user:alice", []byte(`{}`))
		Expect(err).To(MatchError(kv.ErrExists))

		e, err := store.Get(ctx, "user:alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(e.Value)).To(Equal(`{"username":"alice"}`))
	})

	It("swaps only on the current version", func() {
		_, err := store.Create(ctx, "user:bob", []byte("v1"))
		Expect(err).NotTo(HaveOccurred())

		next, err := store.CompareAndSwap(ctx, "user:bob", []byte("v2"), 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(next).To(Equal(int64(2)))

		_, err = store.CompareAndSwap(ctx, "user:bob", []byte("v3"), 1)
		Expect(err).To(MatchError(kv.ErrConflict))

		_, err = store.CompareAndSwap(ctx, "user:nobody", []byte("v"), 1)
		Expect(err).To(MatchError(kv.ErrNotFound))
	})

	It("upserts with Put", func() {
		v, err := store.Put(ctx, "meta:x", []byte("a"))
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(int64(1)))
		v, err = store.Put(ctx, "meta:x", []byte("b"))
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(int64(2)))
	})

	It("lists by literal prefix", func() {
		_, err := store.Put(ctx, "user_x", []byte("{}"))
		Expect(err).NotTo(HaveOccurred())

		keys, err := store.List(ctx, "user:")
		Expect(err).NotTo(HaveOccurred())
		Expect(keys).To(Equal([]string{"user:alice", "user:bob"}))
	})

	It("reports missing keys", func() {
		_, err := store.Get(ctx, "user:ghost")
		Expect(err).To(MatchError(kv.ErrNotFound))
	})
})
