// Package iamclient is the entry point for building an IAM service client.
//
// It wires configuration, the HTTP transport, the region cache, the identity
// map and the resource factory together behind a single Client.
//
// Quick start
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
//
//	  cli, err := iamclient.New(ctx, &iam.Config{
//	    BaseURL:      "https://api.stormpath.com/v1",
//	    APIKeyID:     "id",
//	    APIKeySecret: "secret",
//	  })
//	  if err != nil { log.Fatal(err) }
//	  defer cli.Close()
//
//	  tenant, err := cli.CurrentTenant(ctx)
//	  if err != nil { log.Fatal(err) }
//
//	  apps, err := cli.Applications(tenant.Href() + "/applications").OrderBy("name").ToSlice(ctx)
//	  if err != nil { log.Fatal(err) }
//	  _ = apps
//	}
//
// # Caching
//
// Every resource body the client reads or writes is cached per region,
// nested resources included. Set Config.Cache to choose the backend (memory,
// Redis, NATS KV, tiered or none). Objects for one href are shared within a
// client: two reads of the same account return wrappers over the same data.
//
// # Helpers
//
// NewWithAPIKey wraps New for the common case of a base URL and a key pair.
package iamclient
