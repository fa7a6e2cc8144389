// Package assetcache caches binary assets (images, media) fetched by URL in a
// durable local store and hands out short-lived, revocable handles to them.
//
// A Manager coordinates three layers: the persistent store, a snapshot of
// the keys known to be in it, and a cache of live handles. Reads never touch
// the network; assets enter the store only through ManualCache.
//
// Basic usage:
//
//	m, _ := assetcache.Build(ctx) // default store under ~/.local/share/assetcache
//
//	// Download and persist anything not stored yet (all-or-nothing)
//	err := m.ManualCache(ctx, []string{"https://example.com/a.png"})
//
//	// Get a handle; "" means not available
//	h, _ := m.CacheURL(ctx, "https://example.com/a.png")
//	data, ok := assetcache.Resolve(h)
//
//	// Release handles
//	m.RevokeOne("https://example.com/a.png")
//	m.Destroy()
//
// With an explicit store:
//
//	s, _ := assetcache.OpenStore(dir, "asset-db", "asset-store", assetcache.StoreOptions{Compression: true})
//	defer s.Close()
//	m, _ := assetcache.Build(ctx, assetcache.WithStore(s), assetcache.WithConcurrency(8))
package assetcache
