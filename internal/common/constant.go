package common

// ItemsCollection is the record collection holding inventory items.
const ItemsCollection = "items"

// Asset naming and content types used for keys in the object store.
const (
	AssetExt             = "usdz"
	AssetContentType     = "model/vnd.usdz+zip"
	ThumbnailExt         = "jpg"
	ThumbnailContentType = "image/jpeg"
)

// Collection view defaults.
const (
	DefaultCollectionLimit = 100
	OrderByName            = "name"
)

// Thumbnail derivation defaults.
const (
	DefaultThumbnailSize    = 300
	DefaultThumbnailQuality = 50
)

// AssetKey returns the object-store key of the primary asset for an item.
func AssetKey(itemID string) string {
	return itemID + "." + AssetExt
}

// ThumbnailKey returns the object-store key of the derived preview for an item.
func ThumbnailKey(itemID string) string {
	return itemID + "." + ThumbnailExt
}
