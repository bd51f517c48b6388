// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package fetcher performs bounded outbound HTTP GET requests.
//
// A Fetcher follows at most MaxRedirects redirects, reads at most
// MaxBodyBytes of the body and treats every non-2xx status as a failure
// carrying the status and the start of the body. With BlockPrivate set it
// refuses to connect to loopback, private, link-local and similar
// addresses, checked after DNS resolution so rebinding tricks do not help.
//
// # Key Types
//
//   - Fetcher: the client, safe for concurrent use
//   - Config: timeout, redirect, size and address limits
//   - StatusError: a non-2xx response with its body prefix
//
// # Usage
//
//	f := fetcher.New(fetcher.DefaultConfig())
//	body, err := f.Get(ctx, "https://example.com", 10*time.Second)
//	var se *fetcher.StatusError
//	if errors.As(err, &se) {
//	    // se.Code, se.Body
//	}
package fetcher
