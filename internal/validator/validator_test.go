package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFolderSegmentAcceptsValid(t *testing.T) {
	assert.NoError(t, FolderSegment("my-folder_1"))
}

func TestFolderSegmentRejectsUppercase(t *testing.T) {
	require.Error(t, FolderSegment("MyFolder"))
}

func TestFolderSegmentRejectsTooLong(t *testing.T) {
	require.Error(t, FolderSegment(strings.Repeat("a", 256)))
}

func TestSiteNameAcceptsValid(t *testing.T) {
	assert.NoError(t, SiteName("my-homepage"))
}

func TestSiteNameRejectsTooShortOrTooLong(t *testing.T) {
	require.Error(t, SiteName(""))
	require.Error(t, SiteName(strings.Repeat("a", 64)))
}

func TestSiteNameRejectsLeadingOrTrailingHyphen(t *testing.T) {
	require.Error(t, SiteName("-home"))
	require.Error(t, SiteName("home-"))
}

func TestSiteNameRejectsConsecutiveHyphens(t *testing.T) {
	require.Error(t, SiteName("my--home"))
}

func TestSiteNameRejectsContainsDenylistedWord(t *testing.T) {
	err := SiteName("site-admin-panel")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin")
}

func TestSiteNameRejectsExactReservedName(t *testing.T) {
	require.Error(t, SiteName("www"))
}

func TestSiteNameRejectsInvalidCharacters(t *testing.T) {
	require.Error(t, SiteName("my_home"))
}

func TestPathValidatesSegmentsAndLeaf(t *testing.T) {
	assert.NoError(t, Path([]string{"blog", "posts"}, "my-post"))
}

func TestPathRejectsExcessiveDepth(t *testing.T) {
	segs := []string{"a", "b", "c", "d", "e", "f"}
	require.Error(t, Path(segs, "leaf"))
}

func TestPathPropagatesSegmentError(t *testing.T) {
	require.Error(t, Path([]string{"Bad-Segment"}, "leaf"))
}

func TestUploadNameAcceptsValid(t *testing.T) {
	assert.NoError(t, UploadName("photo.jpg"))
}

func TestUploadNameRejectsIllegalCharacters(t *testing.T) {
	require.Error(t, UploadName("a/b.jpg"))
}

func TestUploadNameRejectsReservedDeviceName(t *testing.T) {
	require.Error(t, UploadName("CON.txt"))
	require.Error(t, UploadName("com1"))
}

func TestUploadNameRejectsLeadingOrTrailingDot(t *testing.T) {
	require.Error(t, UploadName(".hidden"))
	require.Error(t, UploadName("trailing."))
}

func TestUploadNameRejectsTooLong(t *testing.T) {
	require.Error(t, UploadName(strings.Repeat("a", 256)))
}

func TestUploadNameRejectsControlCharacter(t *testing.T) {
	require.Error(t, UploadName("name\x00.txt"))
}
