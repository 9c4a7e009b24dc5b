package svn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaermu/forceimport/internal/vcs"
)

const infoXML = `<?xml version="1.0" encoding="UTF-8"?>
<info>
<entry
   kind="dir"
   path="lib"
   revision="12">
<url>https://svn.example.com/repo/lib</url>
<relative-url>^/lib</relative-url>
<repository>
<root>https://svn.example.com/repo</root>
<uuid>0b5c4b6e-2f5a-4c55-9d3a-2e7b6f1f0c11</uuid>
</repository>
<commit
   revision="9">
<author>jenkins</author>
<date>2024-03-05T10:11:12.123456Z</date>
</commit>
</entry>
</info>
`

const statusXML = `<?xml version="1.0" encoding="UTF-8"?>
<status>
<target
   path="/wc/lib">
<entry
   path="/wc/lib/app.jar">
<wc-status
   props="none"
   item="modified"
   revision="12">
</wc-status>
</entry>
<entry
   path="/wc/lib/new.txt">
<wc-status
   props="none"
   item="added"
   revision="-1">
</wc-status>
</entry>
<entry
   path="/wc/lib/stray.tmp">
<wc-status
   props="none"
   item="unversioned">
</wc-status>
</entry>
<entry
   path="/wc/lib/conf">
<wc-status
   props="modified"
   item="normal"
   revision="12">
</wc-status>
</entry>
</target>
</status>
`

const logXML = `<?xml version="1.0" encoding="UTF-8"?>
<log>
<logentry
   revision="13">
<author>jenkins</author>
<date>2024-03-05T10:15:00.000000Z</date>
<msg>Jenkins</msg>
</logentry>
</log>
`

func TestParseInfo(t *testing.T) {
	entry, err := parseInfo([]byte(infoXML))
	require.NoError(t, err)

	assert.Equal(t, vcs.KindDir, entry.kind)
	assert.Equal(t, "https://svn.example.com/repo/lib", entry.url)
	assert.Equal(t, vcs.Revision("12"), entry.revision)
	assert.Equal(t, vcs.Revision("9"), entry.commit.Revision)
	assert.Equal(t, "jenkins", entry.commit.Author)
	assert.Equal(t, time.Date(2024, 3, 5, 10, 11, 12, 123456000, time.UTC), entry.commit.Date)
}

func TestParseInfo_Invalid(t *testing.T) {
	_, err := parseInfo([]byte("<info></info>"))
	assert.ErrorContains(t, err, "no entry")

	_, err = parseInfo([]byte("not xml <"))
	assert.Error(t, err)
}

func TestParseStatus(t *testing.T) {
	changes, err := parseStatus([]byte(statusXML))
	require.NoError(t, err)

	assert.Equal(t, []vcs.Change{
		{Path: "/wc/lib/app.jar", Status: vcs.StatusModified},
		{Path: "/wc/lib/new.txt", Status: vcs.StatusAdded},
		{Path: "/wc/lib/conf", Status: vcs.StatusModified},
	}, changes)
}

func TestParseStatus_Clean(t *testing.T) {
	changes, err := parseStatus([]byte(`<?xml version="1.0"?><status><target path="/wc"></target></status>`))
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestParseUnversioned(t *testing.T) {
	paths, err := parseUnversioned([]byte(statusXML))
	require.NoError(t, err)
	assert.Equal(t, []string{"/wc/lib/stray.tmp"}, paths)

	paths, err = parseUnversioned([]byte(`<?xml version="1.0"?><status><target path="/wc">
<entry path="/wc/build.log"><wc-status item="ignored" props="none"></wc-status></entry>
</target></status>`))
	require.NoError(t, err)
	assert.Equal(t, []string{"/wc/build.log"}, paths)

	_, err = parseUnversioned([]byte("<info/>"))
	assert.ErrorContains(t, err, "no status element")
}

func TestParseLog(t *testing.T) {
	info, err := parseLog([]byte(logXML))
	require.NoError(t, err)

	assert.Equal(t, vcs.Revision("13"), info.Revision)
	assert.Equal(t, "jenkins", info.Author)
	assert.Equal(t, 2024, info.Date.Year())
}
