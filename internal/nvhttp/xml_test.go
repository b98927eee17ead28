package nvhttp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleServerInfo = `<?xml version="1.0" encoding="utf-8"?>
<root status_code="200">
 <hostname>GAMING-PC</hostname>
 <uniqueid>0f1b2c3d-4e5f-6071-8293-a4b5c6d7e8f9</uniqueid>
 <mac>aa:bb:cc:dd:ee:ff</mac>
 <LocalIP>192.168.1.50</LocalIP>
 <HttpsPort>47984</HttpsPort>
 <ExternalIP>203.0.113.9</ExternalIP>
 <ExternalPort>47989</ExternalPort>
 <state>RAZER_SERVER_BUSY</state>
 <currentgame>17</currentgame>
 <PairStatus>1</PairStatus>
 <appversion>7.1.431.0</appversion>
 <GfeVersion>3.23.0.74</GfeVersion>
 <gputype>NVIDIA GeForce RTX 4080</gputype>
 <MaxLumaPixelsHEVC>1869449984</MaxLumaPixelsHEVC>
 <ServerCodecModeSupport>259</ServerCodecModeSupport>
 <RazerIdIdentifier>true</RazerIdIdentifier>
 <RazerIdPairStatus>Manual</RazerIdPairStatus>
 <DisplayMode><Width>1920</Width><Height>1080</Height><RefreshRate>60</RefreshRate></DisplayMode>
 <DisplayMode><Width>3840</Width><Height>2160</Height><RefreshRate>120</RefreshRate></DisplayMode>
</root>`

func TestParseServerInfo(t *testing.T) {
	info, err := ParseServerInfo([]byte(sampleServerInfo))
	require.NoError(t, err)

	require.Equal(t, "GAMING-PC", info.Hostname)
	require.Equal(t, "0f1b2c3d-4e5f-6071-8293-a4b5c6d7e8f9", info.UniqueID)
	require.Equal(t, 47984, info.HTTPSPort)
	require.Equal(t, 259, info.ServerCodecModeSupport)
	require.Equal(t, 17, info.CurrentGame())
	require.False(t, info.IsNvidiaSoftware())
	require.Len(t, info.DisplayModes, 2)
	require.Equal(t, 120, info.DisplayModes[1].RefreshRate)
}

func TestCurrentGameGatedOnBusyState(t *testing.T) {
	doc := `<root status_code="200"><state>RAZER_SERVER_FREE</state><currentgame>17</currentgame></root>`
	info, err := ParseServerInfo([]byte(doc))
	require.NoError(t, err)
	require.Equal(t, 0, info.CurrentGame())
}

func TestParseServerInfoDefaults(t *testing.T) {
	doc := `<root status_code="200"><hostname>pc</hostname><MaxLumaPixelsHEVC>junk</MaxLumaPixelsHEVC></root>`
	info, err := ParseServerInfo([]byte(doc))
	require.NoError(t, err)
	require.Equal(t, 0, info.MaxLumaPixelsHEVC)
	// Missing codec support implies H.264.
	require.Equal(t, codecModeH264, info.ServerCodecModeSupport)
}

func TestIsNvidiaSoftware(t *testing.T) {
	doc := `<root status_code="200"><state>MJOLNIR_STATE_SERVER_AVAILABLE</state></root>`
	info, err := ParseServerInfo([]byte(doc))
	require.NoError(t, err)
	require.True(t, info.IsNvidiaSoftware())
}

func TestVerifyStatus(t *testing.T) {
	require.NoError(t, VerifyStatus([]byte(`<root status_code="200"/>`)))

	err := VerifyStatus([]byte(`<root status_code="401" status_message="denied"/>`))
	require.True(t, IsStatus(err, 401))

	err = VerifyStatus([]byte(`not xml at all`))
	require.True(t, IsStatus(err, -1))
}

func TestVerifyStatusInvalidRemap(t *testing.T) {
	err := VerifyStatus([]byte(`<root status_code="-1" status_message="Invalid"/>`))
	require.True(t, IsStatus(err, StatusAudioCaptureMissing))
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Contains(t, statusErr.Message, "audio capture")
}

func TestParseAppList(t *testing.T) {
	doc := `<root status_code="200">
 <App><AppTitle>Desktop</AppTitle><ID>1</ID><CustomImagePath>C:\x.png</CustomImagePath><DesktopWallpaperColor>#1a2b3c</DesktopWallpaperColor></App>
 <App><AppTitle>Portal 2</AppTitle><ID>17</ID><GUID>g-17</GUID><IsHdrSupported>1</IsHdrSupported><GamePlatform>Steam</GamePlatform><CustomImagePath>C:\p2.png</CustomImagePath></App>
</root>`
	apps, err := ParseAppList([]byte(doc))
	require.NoError(t, err)
	require.Len(t, apps, 2)

	// Desktop discards the image path and keeps only the wallpaper color.
	require.Equal(t, "RGB: #1a2b3c", apps[0].BoxArt)
	require.Equal(t, "Portal 2", apps[1].Title)
	require.True(t, apps[1].HDRSupported)
	require.Equal(t, `C:\p2.png`, apps[1].BoxArt)
}

func TestXMLStringAndHex(t *testing.T) {
	doc := []byte(`<root status_code="200"><paired>1</paired><plaincert>48656c6c6f</plaincert></root>`)
	require.Equal(t, "1", XMLString(doc, "paired"))
	require.Equal(t, "", XMLString(doc, "missing"))

	raw, err := XMLHex(doc, "plaincert")
	require.NoError(t, err)
	require.Equal(t, []byte("Hello"), raw)

	empty, err := XMLHex(doc, "missing")
	require.NoError(t, err)
	require.Nil(t, empty)
}

func TestParseVersionQuad(t *testing.T) {
	require.Equal(t, []int{7, 1, 431, 0}, ParseVersionQuad("7.1.431.0"))
	require.Nil(t, ParseVersionQuad(""))
	require.Equal(t, []int{3, 0}, ParseVersionQuad("3.x"))
}
