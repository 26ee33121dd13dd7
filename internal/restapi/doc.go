// Package restapi provides an HTTP client for the appliance management REST API.
//
// Every resource lives under the management root (https://<host>:<port>/mgmt)
// and is reached with one of four methods: list (GET), create (POST),
// modify (PATCH) and delete (DELETE). Higher-level packages depend on the
// Executor interface rather than on Client, so tests can substitute the
// recording fake in restapitest.
//
// # Usage Example
//
//	client := restapi.NewClient("10.0.0.5", restapi.DefaultPort)
//	client.SetAuth("admin", password)
//	client.SetInsecureSkipVerify(true)
//
//	raw, err := client.List(ctx, "/tm/sys/available")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Transactions
//
// Calls made with WithTransaction carry the coordination header and are staged
// by the appliance instead of being applied. Staged calls should also use
// WithoutRetry: re-sending one would stage the command twice.
//
// # Error Handling
//
// All failures are *APIError values, classified by ErrorType:
//
//	if restapi.IsAuthError(err) {
//	    // wrong credentials, never retried
//	}
//	if restapi.IsNotFound(err) {
//	    // resource does not exist
//	}
//
// Connection refused, timeouts and 5xx responses are retried under the
// client's transport policy. Everything else is returned after one attempt.
package restapi
