package exif

import (
	goexif "github.com/dsoprea/go-exif/v3"
)

// ReadDescription extracts the embedded ImageDescription from a photo
// on disk. Files without EXIF data return an empty string, not an
// error; plenty of formats the portal serves carry no EXIF block at
// all when exiftool was unavailable at download time.
func ReadDescription(path string) (string, error) {
	rawExif, err := goexif.SearchFileAndExtractExif(path)
	if err != nil {
		if err == goexif.ErrNoExif {
			return "", nil
		}
		return "", err
	}

	tags, _, err := goexif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return "", err
	}

	for _, tag := range tags {
		if tag.TagName == "ImageDescription" {
			return tag.FormattedFirst, nil
		}
	}
	return "", nil
}
