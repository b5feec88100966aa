package sync

import (
	"strconv"
	"strings"

	"github.com/emersion/go-imap"

	"github.com/brandon/mailmirror/pkg/types"
)

// AnalyzeAttachments walks a message body structure depth-first and returns
// metadata for every attachment part, without downloading any payload.
// Presence, count and the returned list all derive from the same predicate,
// so they can never disagree.
func AnalyzeAttachments(bs *imap.BodyStructure) []types.Attachment {
	var atts []types.Attachment
	walkParts(bs, "", &atts)
	return atts
}

// walkParts is a depth-first fold; the locator is the dotted IMAP part number
// of the current node.
func walkParts(bs *imap.BodyStructure, locator string, out *[]types.Attachment) {
	if bs == nil {
		return
	}

	if isAttachmentPart(bs) {
		part := locator
		if part == "" {
			part = "1"
		}
		*out = append(*out, types.Attachment{
			Part:        part,
			Filename:    attachmentFilename(bs),
			ContentType: contentType(bs),
			Size:        bs.Size,
			Encoding:    bs.Encoding,
		})
	}

	for i, child := range bs.Parts {
		childLocator := strconv.Itoa(i + 1)
		if locator != "" {
			childLocator = locator + "." + childLocator
		}
		walkParts(child, childLocator, out)
	}
}

// isAttachmentPart reports whether a part carries an attachment. Some senders
// skip Content-Disposition entirely and only set a name parameter on the
// content type; those still count.
func isAttachmentPart(bs *imap.BodyStructure) bool {
	switch strings.ToLower(bs.Disposition) {
	case "attachment", "inline":
		return true
	}
	return paramValue(bs.Params, "name") != ""
}

// attachmentFilename resolves the display filename: disposition filename
// parameter, then content-type name parameter, then a placeholder.
func attachmentFilename(bs *imap.BodyStructure) string {
	if v := paramValue(bs.DispositionParams, "filename"); v != "" {
		return v
	}
	if v := paramValue(bs.Params, "name"); v != "" {
		return v
	}
	return "unnamed_attachment"
}

func contentType(bs *imap.BodyStructure) string {
	if bs.MIMEType == "" {
		return ""
	}
	return strings.ToLower(bs.MIMEType + "/" + bs.MIMESubType)
}

func paramValue(params map[string]string, key string) string {
	for k, v := range params {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
