package kiro

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// recentImageTurns is how many trailing history turns keep their inline
// images. Older turns get a placeholder so replayed histories stay small.
const recentImageTurns = 5

var imageDataURL = regexp.MustCompile(`^data:image/(\w+);base64,(.+)$`)

func kiroImage(format, data string) map[string]interface{} {
	return map[string]interface{}{
		"format": format,
		"source": map[string]interface{}{"bytes": data},
	}
}

// imageFormat normalizes a media type onto the format names the upstream
// accepts. Anything unrecognized is sent as jpeg.
func imageFormat(mediaType string) string {
	for _, f := range []string{"png", "gif", "webp"} {
		if strings.Contains(mediaType, f) {
			return f
		}
	}
	return "jpeg"
}

// imageFromBlock extracts an Anthropic image block or an OpenAI image_url
// data URL. Remote URLs are skipped, the upstream only takes inline bytes.
func imageFromBlock(block gjson.Result) (map[string]interface{}, bool) {
	switch block.Get("type").String() {
	case "image":
		data := block.Get("source.data").String()
		if data == "" {
			return nil, false
		}
		return kiroImage(imageFormat(block.Get("source.media_type").String()), data), true
	case "image_url":
		m := imageDataURL.FindStringSubmatch(block.Get("image_url.url").String())
		if m == nil {
			return nil, false
		}
		return kiroImage(m[1], m[2]), true
	}
	return nil, false
}

// imageFromGeminiPart extracts an inlineData image part.
func imageFromGeminiPart(part gjson.Result) (map[string]interface{}, bool) {
	inline := part.Get("inlineData")
	if !inline.Exists() {
		inline = part.Get("inline_data")
	}
	mime := inline.Get("mimeType").String()
	if mime == "" {
		mime = inline.Get("mime_type").String()
	}
	data := inline.Get("data").String()
	if data == "" || !strings.HasPrefix(mime, "image/") {
		return nil, false
	}
	return kiroImage(imageFormat(mime), data), true
}

// contentImages collects every image block from a content-part array.
func contentImages(content gjson.Result) []map[string]interface{} {
	if !content.IsArray() {
		return nil
	}
	var images []map[string]interface{}
	content.ForEach(func(_, block gjson.Result) bool {
		if img, ok := imageFromBlock(block); ok {
			images = append(images, img)
		}
		return true
	})
	return images
}

func imagePlaceholder(n int) string {
	return fmt.Sprintf("[此消息包含 %d 张图片，已在历史记录中省略]", n)
}

// attachUserImages puts extracted images on a history user entry.
func attachUserImages(entry map[string]interface{}, images []map[string]interface{}) {
	if len(images) == 0 {
		return
	}
	if user, ok := entry["userInputMessage"].(map[string]interface{}); ok {
		user["images"] = toInterfaceSlice(images)
	}
}

// pruneHistoryImages keeps images only on the trailing recentImageTurns
// entries. Older user turns drop their images and note the omission in the
// text content instead.
func pruneHistoryImages(history []map[string]interface{}) {
	cut := len(history) - recentImageTurns
	for i := 0; i < cut; i++ {
		user, ok := history[i]["userInputMessage"].(map[string]interface{})
		if !ok {
			continue
		}
		images, ok := user["images"].([]interface{})
		if !ok || len(images) == 0 {
			continue
		}
		delete(user, "images")
		note := imagePlaceholder(len(images))
		if content, _ := user["content"].(string); content != "" {
			note = content + "\n" + note
		}
		user["content"] = note
	}
}
