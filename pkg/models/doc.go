// Package models keeps the upstream model catalog.
//
// The catalog is the JSON document returned by the upstream model list
// endpoint, stored verbatim in a file (data/models.json by default) and
// served unchanged from GET /v1/models. It is refreshed periodically from
// upstream and reloaded when the file changes on disk.
//
// The orchestrator asks the catalog whether a model produces images, which
// selects the image-generation output type for a submitted turn:
//
//	catalog := models.NewCatalog("data/models.json")
//	if err := catalog.Load(); err != nil && !errors.Is(err, models.ErrUnavailable) {
//		return err
//	}
//	go catalog.Watch(ctx)
//
//	catalog.IsImageModel("gpt-image-1")
package models
