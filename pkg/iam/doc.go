// Package iam provides the shared building blocks of the identity and access
// management SDK: configuration, the Logger and Serializer abstractions, API
// error types, and request/response interceptors.
//
// # Overview
//
// Most consumers construct a client through the iamclient package and never
// touch the lower layers directly:
//
//	import (
//	  "context"
//	  "log"
//
//	  "github.com/fivetwenty-io/iam/pkg/iam"
//	  "github.com/fivetwenty-io/iam/pkg/iamclient"
//	)
//
//	func example() {
//	  ctx := context.Background()
//	  cli, err := iamclient.New(ctx, &iam.Config{
//	    APIKeyID:     "id",
//	    APIKeySecret: "secret",
//	  })
//	  if err != nil { log.Fatal(err) }
//	  defer cli.Close()
//
//	  tenant, err := cli.CurrentTenant(ctx)
//	  if err != nil { log.Fatal(err) }
//	  _ = tenant
//	}
//
// # Caching
//
// Responses are cached per resource kind in regions (see package cache). The
// backend is selected by Config.Cache: in-memory (default), Redis, NATS
// JetStream key-value, a tiered memory+remote combination, or none.
//
// # Errors
//
// Errors returned by the service are represented by APIError. Helpers such as
// IsNotFound, IsUnauthorized, IsForbidden and IsRateLimited make it easy to
// branch on common cases.
//
// # Interceptors
//
// The package includes request/response interceptors for logging, custom
// headers, correlation ids, metrics and client-side rate limiting. The HTTP
// transport runs them around every attempt sequence.
package iam
