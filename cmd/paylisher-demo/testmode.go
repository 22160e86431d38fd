package main

import (
	"log"
	"time"

	paylisher "github.com/paylisher/paylisher-go"
)

// sampleURLs covers the main link shapes: universal link, custom scheme
// with params, bare campaign key, auth-gated destination and a malformed
// one to exercise the failure path.
var sampleURLs = []string{
	"https://app.paylisher.com/products/42?utm_source=newsletter&utm_campaign=spring",
	"paylisher://checkout?jid=jrn_demo_123&source=email",
	"paylisher://X7kdi5Yq9lTVOv46uHYtV",
	"paylisher://account?auth=required",
	"paylisher://",
}

// runTestMode feeds the sample links through the pipeline with small delays
// so the log output stays readable.
func runTestMode(client *paylisher.Client) {
	log.Printf("test mode: handling %d sample links", len(sampleURLs))

	for i, rawURL := range sampleURLs {
		log.Printf("test link %d/%d: %s", i+1, len(sampleURLs), rawURL)
		client.HandleURL(rawURL)
		time.Sleep(200 * time.Millisecond)
	}

	if client.DeepLinks().HasPending() {
		dest, _ := client.DeepLinks().PendingDestination()
		log.Printf("test mode: completing pending link %s", dest)
		client.DeepLinks().CompletePending()
	}

	log.Printf("test mode: done, flushing")
	client.Flush()
}
