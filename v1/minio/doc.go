// Package minio archives clustering run snapshots in S3-compatible object
// storage.
//
// Each activated run is written once as a JSON object under
// runs/<family>/<run_id>.json. Objects are immutable; the archive outlives
// run retention in the relational store, so a pruned run can still be
// inspected.
//
//	client, err := minio.NewClient(minio.Config{
//		Connection: minio.ConnectionConfig{
//			Endpoint:             "localhost:9000",
//			AccessKeyID:          "minioadmin",
//			SecretAccessKey:      "minioadmin",
//			BucketName:           "lexgraph-runs",
//			AccessBucketCreation: true,
//		},
//	}, log, obs)
//
//	err = client.Put(ctx, "runs/density/42.json", data, "application/json")
//	data, err = client.Get(ctx, "runs/density/42.json")
package minio
